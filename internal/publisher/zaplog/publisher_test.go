package zaplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublisherLogsPayload(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	pub := New(zap.New(core))

	id, err := pub.Publish(context.Background(), "harvest-runs", map[string]int{"links": 3})
	require.NoError(t, err)
	assert.Equal(t, "log-1", id)

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "harvest-runs", fields["topic"])
	assert.Equal(t, `{"links":3}`, fields["payload"])

	_, err = pub.Publish(context.Background(), "", make(chan int))
	require.Error(t, err)
}
