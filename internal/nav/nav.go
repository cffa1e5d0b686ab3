// Package nav tracks the user's location in the provider → platform
// hierarchy. The search configuration (scope, target) is orthogonal
// state owned by the search package.
package nav

// All is the wildcard location value for provider and platform.
const All = "all"

// State is the current navigation location. The zero value is not
// valid; use New.
type State struct {
	Provider string
	Platform string
}

// New returns the root state (all providers, all platforms).
func New() State {
	return State{Provider: All, Platform: All}
}

// AtRoot reports whether no provider is selected.
func (s State) AtRoot() bool {
	return s.Provider == All
}

// InProvider reports whether a provider but no platform is selected.
func (s State) InProvider() bool {
	return s.Provider != All && s.Platform == All
}

// InPlatform reports whether both a provider and a platform are selected.
func (s State) InPlatform() bool {
	return s.Provider != All && s.Platform != All
}

// SelectProvider moves into a provider and clears any platform
// selection. Selecting All resets to the root.
func (s *State) SelectProvider(provider string) {
	s.Provider = provider
	s.Platform = All
}

// SelectPlatform moves into a platform of the current provider.
func (s *State) SelectPlatform(platform string) {
	s.Platform = platform
}

// Reset returns to the root.
func (s *State) Reset() {
	s.Provider = All
	s.Platform = All
}
