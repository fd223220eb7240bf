package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id        int64
	createdAt time.Time
}

func keyOf(r *row) Keyset {
	return Keyset{ID: snowflake.ID(r.id), CreatedAt: r.createdAt}
}

func TestTokenRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 1500, time.FixedZone("WIB", 7*3600))
	parsed, err := ParseToken(Keyset{ID: 1788, CreatedAt: at}.Token())
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.EqualValues(t, 1788, parsed.ID)
	assert.True(t, at.Equal(parsed.CreatedAt))
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	empty, err := ParseToken("  ")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	for _, raw := range []string{"not-a-token", "e30", "eyJpZCI6IjAiLCJjcmVhdGVkX2F0IjoiMjAyNi0wMy0wMVQwMDowMDowMFoifQ"} {
		_, err := ParseToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*row{{3, base.Add(2 * time.Minute)}, {2, base.Add(time.Minute)}, {1, base}}

	items, info := Page(rows, 2, keyOf)
	require.Len(t, items, 2)
	assert.True(t, info.HasMore)
	next, err := ParseToken(info.NextPageToken)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.ID)

	items, info = Page(rows[2:], 2, keyOf)
	assert.Len(t, items, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, 50, ClampSize(0, 50, 250))
	assert.Equal(t, 250, ClampSize(1000, 50, 250))
	assert.Equal(t, 10, ClampSize(10, 50, 250))
}
