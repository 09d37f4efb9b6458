// Package store caches certificate records read from the ledger. The cache
// only ever serves Get; verification always reads the ledger.
package store

import "errors"

// ErrCacheMiss is returned when no fresh entry exists for a certificate.
var ErrCacheMiss = errors.New("certificate cache miss")
