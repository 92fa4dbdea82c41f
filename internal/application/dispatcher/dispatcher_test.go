package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) hasError(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e == msg {
			return true
		}
	}
	return false
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeExpenseApproved, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeExpenseApproved, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseApproved, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	secondCalled := false

	d.SubscribeNamed(event.TypeExpenseRejected, "failing", func(ctx context.Context, evt *event.Event) error {
		return errors.New("boom")
	})
	d.SubscribeNamed(event.TypeExpenseRejected, "after", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseRejected, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.False(t, secondCalled)
	assert.True(t, logger.hasError("Handler error"))
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
		panic("nil map")
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseSubmitted, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
	assert.True(t, logger.hasError("Handler panic recovered"))
}

func TestDispatch_OtherTypesNotCalled(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Subscribe(event.TypeExpenseApproved, func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseRejected, 1, nil)))
	assert.False(t, called)
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var count atomic.Int32

	d.SubscribeAll([]event.Type{event.TypeExpenseSubmitted, event.TypeExpenseApproved}, "notify",
		func(ctx context.Context, evt *event.Event) error {
			count.Add(1)
			return nil
		})

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseSubmitted, 1, nil)))
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseApproved, 1, nil)))
	assert.Equal(t, int32(2), count.Load())
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	var seen atomic.Int32
	var ctxErrs atomic.Int32
	release := make(chan struct{})

	d.Subscribe(event.TypeExpenseApproved, func(ctx context.Context, evt *event.Event) error {
		<-release
		if ctx.Err() != nil {
			ctxErrs.Add(1)
		}
		seen.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx,
		event.NewEvent(event.TypeExpenseApproved, 1, nil),
		event.NewEvent(event.TypeExpenseApproved, 2, nil),
	)
	cancel()
	close(release)

	require.NoError(t, d.Close())
	assert.Equal(t, int32(2), seen.Load())
	assert.Equal(t, int32(0), ctxErrs.Load())
}

func TestDispatchAsync_ErrorsAreLoggedOnly(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Subscribe(event.TypeExpenseRejected, func(ctx context.Context, evt *event.Event) error {
		return fmt.Errorf("lark down")
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeExpenseRejected, 1, nil))
	require.NoError(t, d.Close())
	assert.True(t, logger.hasError("Async handler error"))
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	require.NoError(t, d.Close())
	assert.Error(t, d.Close())
	assert.Error(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseApproved, 1, nil)))

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeExpenseApproved, 1, nil))
	assert.True(t, logger.hasError("Dispatcher is closed, dropping events"))
}

func TestClose_RacingDispatchAsync(t *testing.T) {
	for round := 0; round < 50; round++ {
		d := NewDispatcher()

		var started, finished atomic.Int64
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			started.Add(1)
			defer finished.Add(1)
			return nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				d.DispatchAsync(context.Background(), event.NewEvent(event.TypeExpenseSubmitted, id, nil))
			}(int64(i))
		}

		require.NoError(t, d.Close())
		// every handler accepted before Close has completed by the time it returns
		assert.Equal(t, started.Load(), finished.Load(), "round %d", round)
		wg.Wait()
		assert.Equal(t, started.Load(), finished.Load(), "round %d", round)
	}
}
