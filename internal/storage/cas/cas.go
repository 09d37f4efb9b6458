// Package cas is the content-addressed blob store boundary used for
// certificate documents.
//
// Contract:
//   - Put is idempotent and returns the CID derived from the bytes written.
//   - Stored objects are immutable.
//   - Get returns ErrNotFound when the CID is absent and never returns bytes
//     that do not hash to the requested CID.
//
// CIDs are CIDv1 with the raw codec and a sha2-256 multihash.
package cas

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound    = errors.New("cas: not found")
	ErrInvalidCID  = errors.New("cas: invalid cid")
	ErrCIDMismatch = errors.New("cas: cid mismatch")
	ErrImmutable   = errors.New("cas: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is a content-addressed blob store.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// CIDFor derives the content identifier for data.
func CIDFor(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse decodes a CID string, mapping failures to ErrInvalidCID.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// Verify checks that data hashes to id.
func Verify(id cid.Cid, data []byte) error {
	got, err := CIDFor(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
