package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Pagination carries the wire-level cursor query parameters.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20"`
}

// Normalize clamps the page size into the documented 1..100 range.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Cursor is the decoded keyset position.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// PageInfo describes the page that was returned.
type PageInfo struct {
	NextCursor *string `json:"nextCursor"`
	Limit      int     `json:"limit"`
	Total      int64   `json:"total"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo trims the lookahead row and derives the next cursor.
// Repositories fetch limit+1 rows; the extra row only signals another page.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) string) (*PageInfo, []*T) {
	info := &PageInfo{Limit: limit}
	if len(data) == 0 {
		return info, data
	}

	if len(data) > limit {
		data = data[:limit]
		token := extractCursor(data[len(data)-1])
		if token != "" {
			info.NextCursor = &token
		}
	}

	return info, data
}
