// Package tracker is the client-side companion of the collector. It drives
// the pageview lifecycle for one surface at a time: open a pageview, fold
// in scroll and visibility engagement, roll over on in-app navigation, and
// close with a final best-effort update.
//
// Delivery is fire-and-forget through an ordered transport pipeline; the
// first transport that accepts the event wins and nothing is retried. Lost
// events are an accepted cost: there is no acknowledgement channel, so
// end-to-end delivery cannot be observed.
package tracker
