package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/profile"
)

// Contract is the remote-procedure surface of a deployed smart contract.
type Contract interface {
	// Submit endorses, orders and waits for commit of a transaction.
	Submit(ctx context.Context, name string, args ...string) ([]byte, error)
	// Evaluate runs a read-only query against a single peer.
	Evaluate(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Handle is a connected contract client bound to one identity.
type Handle interface {
	Contract
	Close() error
}

// Connector opens handles. Implementations share transport connections
// between handles; a handle itself is used by one request at a time.
type Connector interface {
	Connect(ctx context.Context, id *identity.Identity, target *profile.Target) (Handle, error)
	Close() error
}

// Session is an exclusive lease on a connected handle. Release it on every
// exit path, typically with defer.
type Session struct {
	Identity *identity.Identity
	Channel  string
	Contract string

	key      string
	handle   Handle
	lastUsed time.Time
	broken   atomic.Bool
	released atomic.Bool
}

// Client returns the contract client for this lease.
func (s *Session) Client() Contract {
	return s.handle
}

// MarkBroken flags the session so Release closes it instead of pooling it.
func (s *Session) MarkBroken() {
	s.broken.Store(true)
}

// Broken reports whether the session has been flagged.
func (s *Session) Broken() bool {
	return s.broken.Load()
}

func sessionKey(identityID, channel, contract string) string {
	return identityID + "|" + channel + "|" + contract
}
