package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID        string
	CreatedAt time.Time
}

func TestPage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []*row{{"3", now}, {"2", now.Add(-time.Minute)}, {"1", now.Add(-2 * time.Minute)}}

	items, info := Page(rows, 2, func(r *row) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
	require.Len(t, items, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", c.ID)
	require.True(t, c.CreatedAt.Equal(now.Add(-time.Minute)))

	items, info = Page(rows, 5, func(r *row) Cursor { return Cursor{ID: r.ID} })
	require.Len(t, items, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
