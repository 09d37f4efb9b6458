// Package ledgertest assembles the in-memory ledger path for tests of the
// services built on it.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"registrar/internal/ledger"
	"registrar/internal/ledger/gateway"
	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/memledger"
	"registrar/internal/ledger/profile"
	"registrar/internal/ledger/txn"
)

const (
	TestChannel  = "academic-records-channel"
	TestContract = "academic-records"
)

// LedgerStack is a complete ledger path backed by the in-memory contract:
// wallet, connection manager and orchestrator.
type LedgerStack struct {
	Ledger       *memledger.Ledger
	Sessions     *gateway.Manager
	Orchestrator *txn.Orchestrator
}

// NewLedgerStack builds a stack whose default identity is the registrar.
// Timeouts and backoff are short so failure paths stay fast.
func NewLedgerStack(t testing.TB, opts ...memledger.Option) *LedgerStack {
	t.Helper()
	l := memledger.New(opts...)
	mgr, err := gateway.New(gateway.Config{
		Profile:    profile.Single(TestChannel, TestContract, "peer0.registrar", "localhost:7051"),
		Identities: identity.NewMemoryWallet(memledger.Identities()...),
		Connector:  memledger.NewConnector(l),
	})
	if err != nil {
		t.Fatalf("connection manager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })

	orch := txn.New(txn.Config{
		Sessions:        mgr,
		Channel:         TestChannel,
		Contract:        TestContract,
		DefaultIdentity: memledger.RegistrarIdentity,
		EvaluateTimeout: 2 * time.Second,
		SubmitTimeout:   2 * time.Second,
		Backoff: txn.BackoffConfig{
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			MaxRetries:   3,
		},
	})
	return &LedgerStack{Ledger: l, Sessions: mgr, Orchestrator: orch}
}

// AssertReleased checks that every acquired session has been released.
func (s *LedgerStack) AssertReleased(t testing.TB) {
	t.Helper()
	st := s.Sessions.Stats()
	assert.Equal(t, st.Acquired, st.Released, "acquire/release imbalance")
	assert.Equal(t, int64(0), st.Active)
}

// SeedStudent writes an active student straight into the contract as the
// registrar, bypassing the session path.
func (s *LedgerStack) SeedStudent(t testing.TB, roll, department string) {
	t.Helper()
	args, err := ledger.Args(roll, "Ravi Kumar", department, 2021, roll+"@student.nitw.ac.in", "aadhaar-digest", "GEN")
	if err != nil {
		t.Fatalf("student args: %v", err)
	}
	registrar := memledger.Caller{ID: memledger.RegistrarIdentity, MSPID: memledger.RegistrarMSP}
	if _, err := s.Ledger.Submit(context.Background(), registrar, "CreateStudent", args...); err != nil {
		t.Fatalf("seed student %s: %v", roll, err)
	}
}
