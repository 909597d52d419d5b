// Package remote defines the collaborator contract a wolfs mount uses to
// check on, and ask for, a remote node's availability before relying on its
// export being reachable.
//
// Grounded on the Python prototype's src/remote.py RemoteNode: Wake-on-LAN
// plus ICMP-ping availability checks, and a mount-point check. wolfs itself
// only needs the contract; actually sending magic packets and pinging a
// host is networking/hardware territory outside this module's scope
// (spec's external collaborator is explicitly a cooperating out-of-band
// system, not something wolfs re-implements end to end), so the only
// concrete implementation shipped here is NoopCollaborator.
package remote

import "context"

// Collaborator represents a remote node that may need waking before its
// export becomes reachable.
type Collaborator interface {
	// IsOnline reports whether the remote node currently responds, without
	// attempting to wake it.
	IsOnline() bool

	// MakeAvailable blocks until the remote node is reachable or ctx is
	// done, waking it first if necessary.
	MakeAvailable(ctx context.Context) error

	// IsMounted reports whether the remote export is currently mounted
	// locally.
	IsMounted() bool
}

// NoopCollaborator is the default Collaborator: it reports the remote node
// as always online, already available, and already mounted. Used when a
// wolfs mount has no wake-capable backing node (e.g. the source tree is
// already a local or always-on path).
type NoopCollaborator struct{}

func (NoopCollaborator) IsOnline() bool                          { return true }
func (NoopCollaborator) MakeAvailable(ctx context.Context) error { return nil }
func (NoopCollaborator) IsMounted() bool                         { return true }
