package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Keyset is the position of the last row of a page in a
// "created_at desc, id desc" listing.
type Keyset struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type token struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Token encodes the keyset as an opaque, URL safe page token.
func (k Keyset) Token() string {
	b, err := json.Marshal(token{
		ID:        k.ID.String(),
		CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ParseToken returns nil for an empty token and ErrInvalidToken for anything
// Token did not produce.
func ParseToken(raw string) (*Keyset, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var t token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, ErrInvalidToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return nil, ErrInvalidToken
	}
	id, err := snowflake.ParseString(t.ID)
	if err != nil || id <= 0 {
		return nil, ErrInvalidToken
	}
	return &Keyset{ID: id, CreatedAt: createdAt}, nil
}

// ClampSize applies def to a missing size and caps it at max.
func ClampSize(size, def, max int) int {
	switch {
	case size <= 0:
		return def
	case size > max:
		return max
	default:
		return size
	}
}

// Page trims rows fetched with limit+1 down to limit. The extra row only
// signals that another page exists.
func Page[T any](rows []*T, limit int, keyOf func(*T) Keyset) ([]T, PageInfo) {
	var info PageInfo
	if len(rows) > limit {
		rows = rows[:limit]
		info.HasMore = true
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	if info.HasMore && len(rows) > 0 {
		info.NextPageToken = keyOf(rows[len(rows)-1]).Token()
	}
	return out, info
}
