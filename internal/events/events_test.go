package events_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/events"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	var a, b int
	bus.Subscribe(events.MinerStarted, func(events.Event) bool { a++; return true })
	bus.Subscribe(events.MinerStarted, func(events.Event) bool { b++; return true })

	bus.Publish(events.Event{Kind: events.MinerStarted})
	bus.Publish(events.Event{Kind: events.MinerStarted})

	require.Equal(t, 2, a)
	require.Equal(t, 2, b)
}

func TestHandlerReturningFalseUnsubscribes(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	calls := 0
	bus.Subscribe(events.ActionStopMining, func(events.Event) bool {
		calls++
		return calls < 1 // false on the very first call
	})

	bus.Publish(events.Event{Kind: events.ActionStopMining})
	bus.Publish(events.Event{Kind: events.ActionStopMining})

	require.Equal(t, 1, calls, "handler must not be invoked again after returning false")
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	calls := 0
	handle := bus.Subscribe(events.BlockchainChanged, func(events.Event) bool { calls++; return true })
	bus.Unsubscribe(events.BlockchainChanged, handle)

	bus.Publish(events.Event{Kind: events.BlockchainChanged, Payload: events.BlockchainChangedPayload{Index: 5}})
	require.Zero(t, calls)
}

func TestPublishIsANoOpWithNoSubscribers(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	require.NotPanics(t, func() {
		bus.Publish(events.Event{Kind: events.SyncFinished})
	})
}

func TestDistinctKindsDoNotCrossDeliver(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	minerCalls, syncCalls := 0, 0
	bus.Subscribe(events.MinerStopped, func(events.Event) bool { minerCalls++; return true })
	bus.Subscribe(events.SyncFinished, func(events.Event) bool { syncCalls++; return true })

	bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: true, Full: true}})

	require.Equal(t, 1, minerCalls)
	require.Equal(t, 0, syncCalls)
}
