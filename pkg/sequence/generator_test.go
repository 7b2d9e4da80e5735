package sequence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGeneratorCodes(t *testing.T) {
	g := NewMemoryGenerator()
	ctx := context.Background()

	first, err := g.NextCampaignCode(ctx)
	require.NoError(t, err)
	second, err := g.NextCampaignCode(ctx)
	require.NoError(t, err)
	inv, err := g.NextInvoiceNo(ctx)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(first, "CMP-"))
	require.True(t, strings.HasPrefix(inv, "INV-"))
	require.NotEqual(t, first, second)

	parts := strings.Split(second, "-")
	require.Len(t, parts, 3)
	require.Equal(t, "002", parts[2][:3])
}
