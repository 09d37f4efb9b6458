package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Named pairs a Store with a stable backend name for logs.
type Named struct {
	Name  string
	Store Store
}

// Replicating writes to every backend and reads from the first that has the
// object. A write succeeds only when all backends accept it with the same CID.
type Replicating struct {
	Backends []Named
}

var _ Store = (*Replicating)(nil)

func (r *Replicating) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := CIDFor(data)
	if err != nil {
		return cid.Undef, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, errors.New("cas: replicating store has no backends")
	}
	for _, b := range r.Backends {
		got, err := b.Store.Put(ctx, data)
		if err != nil {
			return cid.Undef, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		if !got.Equals(want) {
			return cid.Undef, fmt.Errorf("backend %s: %w", b.Name, ErrCIDMismatch)
		}
	}
	return want, nil
}

func (r *Replicating) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	var errs []error
	for _, b := range r.Backends {
		out, err := b.Store.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		errs = append(errs, fmt.Errorf("backend %s: %w", b.Name, err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}

func (r *Replicating) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range r.Backends {
		ok, err := b.Store.Has(ctx, id)
		if err != nil {
			return false, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
