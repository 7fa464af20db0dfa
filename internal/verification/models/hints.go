package models

// PlatformHints describes transport-relevant capabilities of the platform
// the requester is on. They are detected once at the edge (User-Agent) and
// injected, so the orchestrator and transport adapter stay platform-agnostic.
type PlatformHints struct {
	// BackgroundSuspending is true on platforms that suspend the page's
	// network stack while the requester switches to the identity app
	// (observed on iOS Safari). Triggers the relay-health wait before
	// sends and the foregrounding recovery policy.
	BackgroundSuspending bool `json:"isBackgroundSuspending"`

	// SupportsPushNotification is true on mobile platforms where the
	// identity app can be opened via deep link.
	SupportsPushNotification bool `json:"supportsPushNotification"`
}
