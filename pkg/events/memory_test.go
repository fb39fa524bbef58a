package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stokcerdas/replenish/pkg/types"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()

	var got []types.Event
	unsub, err := bus.Subscribe(EventStockLevelChanged, func(evt types.Event) {
		got = append(got, evt)
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), types.Event{
		Name:     EventStockLevelChanged,
		TenantID: "tenant-1",
		Payload:  map[string]any{"productId": "p1"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tenant-1", got[0].TenantID)
	assert.False(t, got[0].OccurredAt.IsZero(), "publish stamps missing timestamps")

	// other subjects do not deliver
	err = bus.Publish(context.Background(), types.Event{Name: EventProductCreated})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	unsub()
	err = bus.Publish(context.Background(), types.Event{Name: EventStockLevelChanged})
	require.NoError(t, err)
	assert.Len(t, got, 1, "unsubscribed handler must not fire")
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	count := 0
	for i := 0; i < 3; i++ {
		_, err := bus.Subscribe(EventReorderExecuted, func(evt types.Event) { count++ })
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), types.Event{Name: EventReorderExecuted}))
	assert.Equal(t, 3, count)
}
