// Package identity resolves ledger client identities from a wallet.
//
// Wallet entries use the Fabric SDK wallet layout: one "<label>.id" JSON file
// per identity holding an X.509 certificate, its private key and the MSP ID.
// Enrollment against a certificate authority happens outside this service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"registrar/internal/ledger"
)

// ErrNotFound is returned when a wallet has no entry for a label.
var ErrNotFound = errors.New("identity not found")

// Identity is a provisioned ledger client. Immutable once resolved.
type Identity struct {
	ID            string
	MSPID         string
	CredentialRef string
	Credential    Credential
}

// Credential is the X.509 material used to sign proposals.
type Credential struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte
}

// Store resolves identities by label.
type Store interface {
	Resolve(ctx context.Context, id string) (*Identity, error)
}

type walletEntry struct {
	Credentials struct {
		Certificate string `json:"certificate"`
		PrivateKey  string `json:"privateKey"`
	} `json:"credentials"`
	MSPID   string `json:"mspId"`
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// FileWallet reads identities from a directory of "<label>.id" files.
type FileWallet struct {
	dir string
}

func NewFileWallet(dir string) *FileWallet {
	return &FileWallet{dir: dir}
}

func (w *FileWallet) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid identity label %q", id)
	}
	return filepath.Join(w.dir, id+".id"), nil
}

// Resolve loads the wallet entry for id.
func (w *FileWallet) Resolve(ctx context.Context, id string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := w.path(id)
	if err != nil {
		return nil, ledger.NewError(ledger.CategoryIdentityNotFound, "resolve identity", err.Error(), ErrNotFound)
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ledger.NewError(ledger.CategoryIdentityNotFound, "resolve identity",
				fmt.Sprintf("identity %q is not enrolled", id), ErrNotFound)
		}
		return nil, fmt.Errorf("read wallet entry %s: %w", p, err)
	}
	var entry walletEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode wallet entry %s: %w", p, err)
	}
	if entry.Type != "" && entry.Type != "X.509" {
		return nil, fmt.Errorf("wallet entry %s: unsupported identity type %q", p, entry.Type)
	}
	if entry.MSPID == "" || entry.Credentials.Certificate == "" || entry.Credentials.PrivateKey == "" {
		return nil, fmt.Errorf("wallet entry %s is incomplete", p)
	}
	return &Identity{
		ID:            id,
		MSPID:         entry.MSPID,
		CredentialRef: p,
		Credential: Credential{
			CertificatePEM: []byte(entry.Credentials.Certificate),
			PrivateKeyPEM:  []byte(entry.Credentials.PrivateKey),
		},
	}, nil
}

// Put writes an identity into the wallet, replacing any existing entry.
func (w *FileWallet) Put(id, mspID string, cred Credential) error {
	p, err := w.path(id)
	if err != nil {
		return err
	}
	var entry walletEntry
	entry.Credentials.Certificate = string(cred.CertificatePEM)
	entry.Credentials.PrivateKey = string(cred.PrivateKeyPEM)
	entry.MSPID = mspID
	entry.Type = "X.509"
	entry.Version = 1
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// MemoryWallet holds identities in memory. Used by the in-memory ledger mode and tests.
type MemoryWallet struct {
	mu  sync.RWMutex
	ids map[string]*Identity
}

func NewMemoryWallet(ids ...*Identity) *MemoryWallet {
	w := &MemoryWallet{ids: make(map[string]*Identity, len(ids))}
	for _, id := range ids {
		w.ids[id.ID] = id
	}
	return w
}

func (w *MemoryWallet) Add(id *Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[id.ID] = id
}

func (w *MemoryWallet) Resolve(ctx context.Context, id string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	found, ok := w.ids[id]
	if !ok {
		return nil, ledger.NewError(ledger.CategoryIdentityNotFound, "resolve identity",
			fmt.Sprintf("identity %q is not enrolled", id), ErrNotFound)
	}
	return found, nil
}
