// Package gcs stores content-addressed blobs in a Google Cloud Storage
// bucket. Object names are CID strings under an optional prefix.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/ipfs/go-cid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"registrar/internal/storage/cas"
)

type Config struct {
	Bucket string
	Prefix string
	// EmulatorHost points the client at a fake-gcs-server style emulator
	// without authentication.
	EmulatorHost string
}

type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ cas.Store = (*Store)(nil)

// New builds a storage client for cfg. Close releases it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	var opts []option.ClientOption
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client *storage.Client, bucket, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) object(id cid.Cid) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + id.String())
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cas.CIDFor(data)
	if err != nil {
		return cid.Undef, err
	}

	w := s.object(id).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return cid.Undef, fmt.Errorf("gcs: write %s: %w", id, err)
	}
	if err := w.Close(); err != nil {
		if !isPreconditionFailed(err) {
			return cid.Undef, fmt.Errorf("gcs: write %s: %w", id, err)
		}
		existing, rerr := s.Get(ctx, id)
		if rerr != nil || !bytes.Equal(existing, data) {
			return cid.Undef, cas.ErrImmutable
		}
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, cas.ErrInvalidCID
	}
	r, err := s.object(id).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, cas.ErrNotFound
		}
		return nil, fmt.Errorf("gcs: read %s: %w", id, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", id, err)
	}
	if err := cas.Verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.object(id).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("gcs: stat %s: %w", id, err)
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
