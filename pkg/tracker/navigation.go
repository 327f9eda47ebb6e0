package tracker

// NavigationObserver reports in-app navigations through a single callback.
// Host applications adapt whatever interception mechanism their router
// offers (history hooks, route-change events) to this interface.
type NavigationObserver interface {
	// Observe registers the callback invoked with the destination page of
	// every in-app navigation.
	Observe(onNavigate func(next PageContext))
}

// ObserveNavigation wires the tracker into an observer. The handler is
// hardened so that tracking failures can never prevent the observed
// navigation itself from completing.
func (t *Tracker) ObserveNavigation(obs NavigationObserver) {
	obs.Observe(func(next PageContext) {
		defer func() {
			// A tracking panic must not escape into the navigation path.
			recover()
		}()
		t.Navigate(next)
	})
}
