package provider

import (
	"github.com/lattice/backend/internal/config"
)

// Mode says whether provider calls hit the real network API or the local
// deterministic simulator.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// Selector decides, per call, which API implementation a provider operation
// should go through. The decision is a pure function of the current
// configuration and is re-evaluated on every call, so credential or toggle
// changes take effect without a restart.
type Selector struct {
	cfg  *config.Provider
	live API
	sim  API
}

// NewSelector creates a mode selector over the live client and simulator.
func NewSelector(cfg *config.Provider, live, sim API) *Selector {
	return &Selector{cfg: cfg, live: live, sim: sim}
}

// Resolve returns the current mode: live iff credentials are present and the
// feature toggle is enabled.
func (s *Selector) Resolve() Mode {
	if s.cfg.Enabled && s.cfg.ClientID != "" && s.cfg.ClientSecret != "" {
		return ModeLive
	}
	return ModeSimulated
}

// Pick resolves the current mode and returns the matching implementation
// together with the mode tag, so callers can thread it through responses.
func (s *Selector) Pick() (API, Mode) {
	mode := s.Resolve()
	return s.ForMode(mode), mode
}

// ForMode returns the implementation for a mode fixed earlier. Sessions pin
// their mode at creation so live and synthetic account identifiers are never
// mixed within one linking attempt.
func (s *Selector) ForMode(mode Mode) API {
	if mode == ModeLive {
		return s.live
	}
	return s.sim
}
