package memledger

import (
	"context"

	"registrar/internal/ledger/gateway"
	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/profile"
)

// Connector opens handles onto a shared in-memory Ledger.
type Connector struct {
	ledger *Ledger
}

func NewConnector(l *Ledger) *Connector {
	return &Connector{ledger: l}
}

func (c *Connector) Connect(ctx context.Context, id *identity.Identity, _ *profile.Target) (gateway.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &handle{ledger: c.ledger, caller: Caller{ID: id.ID, MSPID: id.MSPID}}, nil
}

func (c *Connector) Close() error {
	return nil
}

type handle struct {
	ledger *Ledger
	caller Caller
}

func (h *handle) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	return h.ledger.Submit(ctx, h.caller, name, args...)
}

func (h *handle) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	return h.ledger.Evaluate(ctx, h.caller, name, args...)
}

func (h *handle) Close() error {
	return nil
}

var _ gateway.Connector = (*Connector)(nil)

// Well-known identities for development and tests, one per organization.
const (
	RegistrarIdentity  = "registrar-admin"
	DepartmentIdentity = "department-admin"
	VerifierIdentity   = "verifier"
)

// Identities returns wallet entries matching the contract's organizations.
// The in-memory ledger does not check signatures, so they carry no credentials.
func Identities() []*identity.Identity {
	return []*identity.Identity{
		{ID: RegistrarIdentity, MSPID: RegistrarMSP},
		{ID: DepartmentIdentity, MSPID: DepartmentsMSP},
		{ID: VerifierIdentity, MSPID: VerifiersMSP},
	}
}
