package ledger

// DefaultPageSize applies when a query asks for a non-positive or oversized page.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Page is one page of a paginated contract query.
type Page[T any] struct {
	Records     []T    `json:"records"`
	Bookmark    string `json:"bookmark"`
	RecordCount int    `json:"recordCount"`
	HasMore     bool   `json:"hasMore"`
}

// NormalizePageSize clamps size into (0, MaxPageSize], defaulting to DefaultPageSize.
func NormalizePageSize(size int) int {
	if size <= 0 || size > MaxPageSize {
		return DefaultPageSize
	}
	return size
}

// DecodePage decodes a paginated result; a null record list becomes empty.
func DecodePage[T any](operation string, payload []byte) (*Page[T], error) {
	page, err := Decode[Page[T]](operation, payload)
	if err != nil {
		return nil, err
	}
	if page.Records == nil {
		page.Records = []T{}
	}
	return page, nil
}
