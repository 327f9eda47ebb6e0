// Package pageview implements the pageview ingestion and engagement-append
// business logic.
//
// Create validates the client payload, enriches it (user-agent
// classification, GeoIP country, visitor uniqueness) and persists it once;
// Append overwrites the engagement metrics of an existing record. Each
// enrichment collaborator is independently fault-tolerant: an outage
// downgrades to a documented default rather than blocking the write. The
// one exception is a uniqueness check fed empty inputs, which is a caller
// bug and fails the request.
//
// The service layer depends only on the Repository and enrichment
// interfaces defined here. It never imports net/http or database/sql.
package pageview
