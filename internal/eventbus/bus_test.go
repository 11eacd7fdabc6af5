package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterEventDuplicateFails(t *testing.T) {
	b := New(0)
	require.NoError(t, b.RegisterEvent(Definition{Name: "ev_test"}))
	require.Error(t, b.RegisterEvent(Definition{Name: "ev_test"}))
}

func TestRegisterCallbackIdempotent(t *testing.T) {
	b := New(0)
	calls := 0
	fn := func(ctx context.Context, d Data) error { calls++; return nil }

	added, err := b.RegisterCallback("ev_test", "weather", "cb", DefaultPriority, fn)
	require.NoError(t, err)
	require.True(t, added)

	added, err = b.RegisterCallback("ev_test", "weather", "cb", DefaultPriority, fn)
	require.NoError(t, err)
	require.False(t, added)

	_, err = b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRaiseOrdersByPriorityThenRegistration(t *testing.T) {
	b := New(0)
	var order []string

	record := func(name string) Callback {
		return func(ctx context.Context, d Data) error {
			order = append(order, name)
			return nil
		}
	}

	_, _ = b.RegisterCallback("ev_test", "p1", "b", 50, record("p1.b"))
	_, _ = b.RegisterCallback("ev_test", "p1", "a", 10, record("p1.a"))
	_, _ = b.RegisterCallback("ev_test", "p2", "c", 50, record("p2.c"))

	_, err := b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
	require.NoError(t, err)
	require.Equal(t, []string{"p1.a", "p1.b", "p2.c"}, order)
}

func TestRaiseRestartsScanWhenCallbackRegistersAnother(t *testing.T) {
	b := New(0)
	var order []string

	_, _ = b.RegisterCallback("ev_test", "p1", "first", 10, func(ctx context.Context, d Data) error {
		order = append(order, "first")
		_, _ = b.RegisterCallback("ev_test", "p1", "late", 5, func(ctx context.Context, d Data) error {
			order = append(order, "late")
			return nil
		})
		return nil
	})

	inv, err := b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "late"}, order)
	require.GreaterOrEqual(t, inv.Passes, 2)
}

func TestRaiseFaultDoesNotStopDispatch(t *testing.T) {
	b := New(0)
	second := false

	_, _ = b.RegisterCallback("ev_test", "p1", "broken", 10, func(ctx context.Context, d Data) error {
		return errors.New("boom")
	})
	_, _ = b.RegisterCallback("ev_test", "p1", "ok", 20, func(ctx context.Context, d Data) error {
		second = true
		return nil
	})

	_, err := b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
	require.NoError(t, err)
	require.True(t, second)
}

func TestRaiseDataListDispatchesOncePerElement(t *testing.T) {
	b := New(0)
	var seen []interface{}

	_, _ = b.RegisterCallback("ev_line", "p1", "cb", 50, func(ctx context.Context, d Data) error {
		seen = append(seen, d["line"])
		return nil
	})

	_, err := b.Raise(context.Background(), "ev_line", Data{}, "test", []interface{}{"a", "b", "c"}, "line")
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "b", "c"}, seen)
}

func TestCurrentEventRecordAndStack(t *testing.T) {
	b := New(0)
	var innerSeenOuter bool

	_, _ = b.RegisterCallback("ev_outer", "p1", "outer", 50, func(ctx context.Context, d Data) error {
		stack := b.EventStack()
		require.Len(t, stack, 1)
		_, _ = b.RegisterCallback("ev_inner", "p1", "inner", 50, func(ctx context.Context, d Data) error {
			innerSeenOuter = len(b.EventStack()) == 2
			return nil
		})
		_, err := b.Raise(ctx2(), "ev_inner", nil, "test", nil, "")
		return err
	})

	_, err := b.Raise(context.Background(), "ev_outer", nil, "test", nil, "")
	require.NoError(t, err)
	require.True(t, innerSeenOuter)
	require.Nil(t, b.CurrentEventRecord())
}

func ctx2() context.Context { return context.Background() }

func TestHistoryBounded(t *testing.T) {
	b := New(2)
	for i := 0; i < 5; i++ {
		_, err := b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
		require.NoError(t, err)
	}
	hist := b.History("ev_test")
	require.Len(t, hist, 2)
	require.EqualValues(t, 5, b.RaiseCount("ev_test"))
}

func TestUnregisterOwnerRemovesAllItsCallbacks(t *testing.T) {
	b := New(0)
	var calls int
	_, _ = b.RegisterCallback("ev_test", "weather", "a", 50, func(ctx context.Context, d Data) error {
		calls++
		return nil
	})
	_, _ = b.RegisterCallback("ev_test", "clock", "b", 50, func(ctx context.Context, d Data) error {
		calls++
		return nil
	})

	removed := b.UnregisterOwner("weather")
	require.Equal(t, 1, removed)

	_, err := b.Raise(context.Background(), "ev_test", nil, "test", nil, "")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestUnregisterCallback(t *testing.T) {
	b := New(0)
	_, _ = b.RegisterCallback("ev_test", "weather", "a", 50, func(ctx context.Context, d Data) error { return nil })
	require.True(t, b.UnregisterCallback("ev_test", "weather", "a"))
	require.False(t, b.UnregisterCallback("ev_test", "weather", "a"))
}
