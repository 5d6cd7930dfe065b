package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "harvest-runs", map[string]string{"run_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "harvest-alerts", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "harvest-runs", msgs[0].Topic)
	assert.Equal(t, "harvest-alerts", msgs[1].Topic)

	msgs[0].Topic = "modified"
	assert.Equal(t, "harvest-runs", pub.Messages()[0].Topic, "Messages() must return a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(assert.AnError)
	_, err := pub.Publish(context.Background(), "t", 1)
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", 1)
	require.NoError(t, err)
}

func TestPublisherSummaries(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "harvest-runs", catalog.RunSummary{RunID: "a", UniqueLinks: 4})
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "harvest-runs", "not a summary")
	require.NoError(t, err)

	got := pub.Summaries()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].RunID)
	assert.Equal(t, 4, got[0].UniqueLinks)
}
