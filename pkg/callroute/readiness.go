package callroute

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/haivivi/carhal/pkg/halerr"
)

// Role identifies one of the call streams.
type Role int

const (
	// MicIn is the microphone relayed into the hands-free output.
	MicIn Role = iota
	// HFPIn is the hands-free input relayed into the primary output.
	HFPIn
	// HFPOut is the hands-free output.
	HFPOut
)

func (r Role) String() string {
	switch r {
	case MicIn:
		return "mic-in"
	case HFPIn:
		return "hfp-in"
	case HFPOut:
		return "hfp-out"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Readiness collects the ready signals of a set of roles. Done is closed
// once every role has been marked.
type Readiness struct {
	mu      sync.Mutex
	pending map[Role]struct{}
	marked  []Role
	done    chan struct{}
}

// NewReadiness returns a Readiness waiting for roles.
func NewReadiness(roles ...Role) *Readiness {
	r := &Readiness{
		pending: make(map[Role]struct{}, len(roles)),
		done:    make(chan struct{}),
	}
	for _, role := range roles {
		r.pending[role] = struct{}{}
	}
	if len(r.pending) == 0 {
		close(r.done)
	}
	return r
}

// Mark records that role is ready. Marking a role twice, or a role that was
// not asked for, does nothing.
func (r *Readiness) Mark(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[role]; !ok {
		return
	}
	delete(r.pending, role)
	r.marked = append(r.marked, role)
	if len(r.pending) == 0 {
		close(r.done)
	}
}

// Done returns a channel closed when every role is ready.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Marked returns the roles marked so far, in marking order.
func (r *Readiness) Marked() []Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.marked)
}

// Pending returns the roles not yet marked.
func (r *Readiness) Pending() []Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := make([]Role, 0, len(r.pending))
	for role := range r.pending {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// Wait blocks until every role is ready or ctx is done. A deadline that
// passes first yields halerr.ErrTimeout.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
	}
	// Readiness that raced the deadline still counts.
	select {
	case <-r.done:
		return nil
	default:
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("callroute: waiting for %v: %w", r.Pending(), halerr.ErrTimeout)
	}
	return fmt.Errorf("callroute: waiting for %v: %w", r.Pending(), ctx.Err())
}
