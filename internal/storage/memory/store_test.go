package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

func TestLinkStoreDedupIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewLinkStore()
	require.NoError(t, store.Append(ctx, "https://shop.test/p/2", "https://shop.test/p/1", "", "https://shop.test/p/2"))

	first, err := store.LoadDeduplicated(ctx)
	require.NoError(t, err)
	second, err := store.LoadDeduplicated(ctx)
	require.NoError(t, err)

	assert.Equal(t, []catalog.ProductLink{"https://shop.test/p/2", "https://shop.test/p/1"}, first)
	assert.Equal(t, first, second)
	assert.LessOrEqual(t, len(first), len(store.Rows()))

	require.NoError(t, store.Reset(ctx))
	empty, err := store.LoadDeduplicated(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProductStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProductStore()
	require.NoError(t, store.Append(ctx, catalog.ProductRecord{Link: "https://shop.test/p/1"}))
	assert.Len(t, store.Records(), 1)
	require.NoError(t, store.Reset(ctx))
	assert.Empty(t, store.Records())
}

func TestRunStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	require.Error(t, store.SaveRun(ctx, catalog.RunSummary{}))

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.SaveRun(ctx, catalog.RunSummary{RunID: fmt.Sprintf("run-%d", i)}))
	}
	require.NoError(t, store.SaveRun(ctx, catalog.RunSummary{RunID: "run-2", UniqueLinks: 9}))

	got, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, 9, got.UniqueLinks)

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrRunNotFound)

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
