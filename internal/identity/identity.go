// Package identity tracks the local account and gates operations that
// must not run before the session knows who it is.
package identity

import (
	"context"
	"errors"

	"github.com/mgauthier/tilewire/internal/broadcast"
)

// ErrUnresolved is returned when an identity-dependent operation must be
// aborted: the account is definitively absent or the wait expired.
var ErrUnresolved = errors.New("identity: unresolved")

// Account is the local player's resolved identity. Name is the display
// name used for message provenance classification.
type Account struct {
	ID   string
	Name string
}

// Resolver publishes account resolutions. A published nil means the
// identity is definitively absent; no publication yet means it is still
// unknown.
type Resolver struct {
	accounts *broadcast.Broadcaster[*Account]
}

// NewResolver creates an unresolved Resolver.
func NewResolver() *Resolver {
	return &Resolver{accounts: broadcast.New[*Account]()}
}

// Resolve records the account (nil for known-absent) and notifies waiters.
func (r *Resolver) Resolve(a *Account) {
	r.accounts.Publish(a)
}

// Current returns the resolved account, or nil if absent or not yet
// resolved.
func (r *Resolver) Current() *Account {
	a, _ := r.accounts.Last()
	return a
}

// Accounts exposes the resolution stream. The latest resolution is
// replayed to new subscribers.
func (r *Resolver) Accounts() (<-chan *Account, func()) {
	return r.accounts.Subscribe()
}

// Await blocks until the first resolution is observed, then returns the
// account. It fails with ErrUnresolved if the identity is definitively
// absent or ctx expires first. The wait is bounded to the first
// resolution; it never blocks past that point.
func (r *Resolver) Await(ctx context.Context) (*Account, error) {
	ch, cancel := r.accounts.Subscribe()
	defer cancel()

	select {
	case a, ok := <-ch:
		if !ok || a == nil {
			return nil, ErrUnresolved
		}
		return a, nil
	case <-ctx.Done():
		return nil, ErrUnresolved
	}
}
