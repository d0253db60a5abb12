package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector/mock"
	"github.com/jholdgaard/subastamon/internal/event"
)

func TestCollector_ReplaysScriptInOrder(t *testing.T) {
	script := []event.Event{
		{Kind: event.KindSnapshot, Message: "first"},
		{Kind: event.KindUpdate, Message: "second"},
		{Kind: event.KindEnd, Message: "third"},
	}

	c := mock.New(script, time.Millisecond, clock.Real{}, nil)
	sub := c.Bus().Subscribe(16)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx), "Start()")
	defer c.Stop()

	var kinds []event.Kind
	timeout := time.After(time.Second)
	for len(kinds) < 5 { // START + 3 scripted + STOP
		select {
		case e := <-sub:
			kinds = append(kinds, e.Kind)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v so far", kinds)
		}
	}

	want := []event.Kind{event.KindStart, event.KindSnapshot, event.KindUpdate, event.KindEnd, event.KindStop}
	require.Equal(t, want, kinds)
}

func TestCollector_StopIsIdempotent(t *testing.T) {
	c := mock.New(nil, time.Millisecond, clock.Real{}, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx), "Start()")
	require.NoError(t, c.Stop(), "Stop()")
	require.NoError(t, c.Stop(), "second Stop()")
}
