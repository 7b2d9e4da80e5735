package celengine

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(map[string]*cel.Type{
		"url":   cel.StringType,
		"count": cel.IntType,
	})
	require.NoError(t, err)
	return e
}

func TestEvaluate(t *testing.T) {
	e := newEngine(t)

	ok, err := e.Evaluate(`url.startsWith("https://") && count >= 2`, map[string]any{"url": "https://a", "count": int64(2)})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(`url.startsWith("https://") && count >= 2`, map[string]any{"url": "http://a", "count": int64(2)})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidate(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.Validate(`count > 0`))
	require.Error(t, e.Validate(`count + 1`))
	require.Error(t, e.Validate(`unknown == 1`))
	require.Error(t, e.Validate(`count >`))
}
