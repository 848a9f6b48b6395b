package provider

import (
	"errors"

	"github.com/thruflo/ralph/internal/logging"
)

// ErrNoProviderAvailable is returned when no configured provider passes its
// availability probe.
var ErrNoProviderAvailable = errors.New("no provider available")

// Rotation is the ordered provider list and the current selection. Entries
// are never removed; unavailable ones are skipped. The index only moves
// forward, wrapping at the end.
type Rotation struct {
	providers []Provider
	index     int
}

// NewRotation returns a Rotation starting at the first provider.
func NewRotation(providers []Provider) *Rotation {
	return &Rotation{providers: append([]Provider(nil), providers...)}
}

// Len returns the number of configured providers.
func (r *Rotation) Len() int {
	return len(r.providers)
}

// Index returns the position of the current provider.
func (r *Rotation) Index() int {
	return r.index
}

// Providers returns the configured providers in rotation order.
func (r *Rotation) Providers() []Provider {
	return append([]Provider(nil), r.providers...)
}

// AvailableCount returns how many providers currently pass their probe.
func (r *Rotation) AvailableCount() int {
	n := 0
	for _, p := range r.providers {
		if p.Available() {
			n++
		}
	}
	return n
}

// Current returns the active provider. If it has become unavailable the
// selection advances to the next available one.
func (r *Rotation) Current() (Provider, error) {
	n := len(r.providers)
	for i := 0; i < n; i++ {
		j := (r.index + i) % n
		if r.providers[j].Available() {
			if j != r.index {
				logging.Debug("current provider unavailable, advancing",
					"from", r.providers[r.index].DisplayName(),
					"to", r.providers[j].DisplayName())
				r.index = j
			}
			return r.providers[j], nil
		}
	}
	return nil, ErrNoProviderAvailable
}

// Rotate advances to the next available provider that differs from the
// current one. When the current provider is the only one available it is
// returned unchanged.
func (r *Rotation) Rotate() (Provider, error) {
	n := len(r.providers)
	for i := 1; i < n; i++ {
		j := (r.index + i) % n
		if r.providers[j].Available() {
			logging.Debug("rotating provider",
				"from", r.providers[r.index].DisplayName(),
				"to", r.providers[j].DisplayName())
			r.index = j
			return r.providers[j], nil
		}
	}
	if n > 0 && r.providers[r.index].Available() {
		return r.providers[r.index], nil
	}
	return nil, ErrNoProviderAvailable
}
