package session

import (
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/roles"
)

// State is the phase of the session machine.
type State uint8

// Machine states; every identity event moves the machine back to StateReconciling.
const (
	StateInitializing State = iota
	StateReconciling
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReconciling:
		return "reconciling"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot is one atomically published view of the session. Identity and
// Profile are shared between snapshots and must be treated as read-only.
type Snapshot struct {
	State           State
	Identity        *model.Identity
	Profile         *model.Profile
	CheckingAuth    bool
	AuthReady       bool
	DisplayChecking bool   // anti-flicker variant of CheckingAuth
	Generation      uint64 // identity events seen so far
	Err             error  // failure of the last reconciliation, if any
}

// Ready reports a settled session: AuthReady and not CheckingAuth.
func (s Snapshot) Ready() bool { return s.AuthReady && !s.CheckingAuth }

// IsAdmin is false until the session is ready, then follows roles.IsAdmin.
func (s Snapshot) IsAdmin() bool { return s.Ready() && roles.IsAdmin(s.Profile) }

// HasProfile reports a ready session with a synchronized profile.
func (s Snapshot) HasProfile() bool { return s.Ready() && s.Profile != nil }
