package twoway

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestPair_SendDownChannel(t *testing.T) {
	a, b := NewPair[int]()

	require.NoError(t, a.Send(5))

	v, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestPair_SendDownChannelAcrossGoroutines(t *testing.T) {
	a, b := NewPair[int]()

	go func() {
		assert.NoError(t, a.Clone().Send(2763))
	}()

	v, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, 2763, v)
}

func TestPair_DeliveryOrderBothDirections(t *testing.T) {
	a, b := NewPair[string]()

	toB := []string{"one", "two", "three", "four"}
	toA := []string{"uno", "dos", "tres"}

	for _, v := range toB {
		require.NoError(t, a.Send(v))
	}
	for _, v := range toA {
		require.NoError(t, b.Send(v))
	}

	for _, want := range toB {
		got, err := b.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range toA {
		got, err := a.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPair_DirectionalIndependence(t *testing.T) {
	a, b := NewPair[int]()

	// interleave the two directions; negatives flow b -> a
	for i := 1; i <= 20; i++ {
		require.NoError(t, a.Send(i))
		require.NoError(t, b.Send(-i))
	}

	assert.Equal(t, 20, a.Len())
	assert.Equal(t, 20, b.Len())

	for i := 1; i <= 20; i++ {
		got, err := b.Recv()
		require.NoError(t, err)
		assert.Equal(t, i, got)

		got, err = a.Recv()
		require.NoError(t, err)
		assert.Equal(t, -i, got)
	}

	_, err := a.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = b.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)

	runtime.KeepAlive(a)
}

func TestPair_SeparatePairsDoNotMix(t *testing.T) {
	a1, b1 := NewPair[int]()
	a2, b2 := NewPair[int]()

	require.NoError(t, a1.Send(1))
	require.NoError(t, a2.Send(2))

	_, err := b2.TryRecv()
	require.NoError(t, err)
	_, err = b2.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)

	v, err := b1.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	runtime.KeepAlive(a1)
	runtime.KeepAlive(a2)
}

func TestPair_ConcurrentFanIn(t *testing.T) {
	const k = 64
	a, b := NewPair[int]()

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			assert.NoError(t, a.Send(v))
		}(i)
	}

	got := make([]int, 0, k)
	for i := 0; i < k; i++ {
		v, err := b.Recv()
		require.NoError(t, err)
		got = append(got, v)
	}
	wg.Wait()

	sort.Ints(got)
	for i := 0; i < k; i++ {
		assert.Equal(t, i, got[i])
	}
	assert.Equal(t, 0, b.Len())
}

func TestPair_ConcurrentReceivers(t *testing.T) {
	const n = 500
	a, b := NewPair[int]()

	var mu sync.Mutex
	seen := make(map[int]int, n)

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		handle := b.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer handle.Close()
			for {
				v, err := handle.Recv()
				if err != nil {
					assert.ErrorIs(t, err, ErrPeerGone)
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, a.Send(i))
	}
	require.NoError(t, a.Close())
	wg.Wait()

	assert.Len(t, seen, n)
	for v, count := range seen {
		assert.Equal(t, 1, count, "value %d delivered %d times", v, count)
	}
}

func TestPair_BlockedRecvDoesNotBlockSend(t *testing.T) {
	a, b := NewPair[int]()

	recvDone := make(chan int, 1)
	go func() {
		v, err := a.Recv()
		assert.NoError(t, err)
		recvDone <- v
	}()

	time.Sleep(10 * time.Millisecond)

	// a is parked in Recv; its send side must still work
	sent := make(chan error, 1)
	go func() { sent <- a.Send(1) }()
	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send blocked behind a pending Recv")
	}

	require.NoError(t, b.Send(2))
	select {
	case v := <-recvDone:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("Recv did not return")
	}

	v, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPair_SendToClosedPeerReturnsValue(t *testing.T) {
	a, b := NewPair[string]()
	require.NoError(t, b.Close())

	err := a.Send("undelivered")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerGone)

	var sendErr *SendError[string]
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, "undelivered", sendErr.Value)
	assert.Contains(t, err.Error(), "peer gone")
}

func TestPair_RecvFromClosedPeerFails(t *testing.T) {
	a, b := NewPair[int]()
	require.NoError(t, a.Send(1))
	require.NoError(t, a.Close())

	// buffered values are still delivered
	v, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = b.Recv()
	assert.ErrorIs(t, err, ErrPeerGone)

	// permanent
	_, err = b.Recv()
	assert.ErrorIs(t, err, ErrPeerGone)
}

func TestPair_CloseReleasesPendingPeerRecv(t *testing.T) {
	a, b := NewPair[int]()
	errs := make(chan error, 1)

	go func() {
		_, err := b.Recv()
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrPeerGone)
	case <-time.After(time.Second):
		t.Fatal("Recv kept blocking after the peer closed")
	}
}

func TestEndpoint_CloneKeepsEndpointAlive(t *testing.T) {
	a, b := NewPair[int]()

	a2 := a.Clone()
	require.NotNil(t, a2)
	require.NoError(t, a.Close())

	// the endpoint survives while a2 is open
	require.NoError(t, b.Send(9))
	v, err := a2.Recv()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	require.NoError(t, a2.Send(10))

	require.NoError(t, a2.Close())

	v, err = b.Recv()
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	_, err = b.Recv()
	assert.ErrorIs(t, err, ErrPeerGone)
	assert.ErrorIs(t, b.Send(11), ErrPeerGone)
}

func TestEndpoint_UseAfterClose(t *testing.T) {
	a, _ := NewPair[int]()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "Close is idempotent")

	err := a.Send(1)
	assert.ErrorIs(t, err, ErrEndpointClosed)
	var sendErr *SendError[int]
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, 1, sendErr.Value)

	_, err = a.Recv()
	assert.ErrorIs(t, err, ErrEndpointClosed)
	_, err = a.TryRecv()
	assert.ErrorIs(t, err, ErrEndpointClosed)
	assert.Nil(t, a.Clone())
}

func TestEndpoint_CloseDuringOwnRecv(t *testing.T) {
	a, b := NewPair[int]()
	t.Cleanup(func() { _ = b.Close() })
	errs := make(chan error, 1)

	go func() {
		_, err := a.Recv()
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrEndpointClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the pending Recv")
	}
}

func TestEndpoint_RecvContext(t *testing.T) {
	a, b := NewPair[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.RecvContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a cancelled waiter leaves the endpoint usable
	require.NoError(t, a.Send(3))
	v, err := b.RecvContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestEndpoint_RecvContextClosedHandleWinsOverContext(t *testing.T) {
	a, b := NewPair[int]()
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := a.RecvContext(ctx)
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrEndpointClosed)
	case <-time.After(time.Second):
		t.Fatal("RecvContext did not return")
	}

	// already closed and already cancelled
	_, err := a.RecvContext(ctx)
	assert.ErrorIs(t, err, ErrEndpointClosed)
}

func TestEndpoint_RecvContextWhileAnotherReceiverWaits(t *testing.T) {
	a, b := NewPair[int]()
	t.Cleanup(func() { _ = a.Close() })

	go func() {
		_, _ = b.Recv()
	}()
	time.Sleep(10 * time.Millisecond)

	// the second receiver waits for the guard and still honours its context
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.RecvContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = b.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func newDetachedEndpoint() *Endpoint[int] {
	a, _ := NewPair[int]()
	return a
}

func TestEndpoint_UnreachablePeerIsReleased(t *testing.T) {
	a := newDetachedEndpoint()

	var err error
	for i := 0; i < 100; i++ {
		runtime.GC()
		if err = a.Send(1); err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.ErrorIs(t, err, ErrPeerGone)

	for i := 0; i < 100; i++ {
		_, err = a.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.ErrorIs(t, err, ErrPeerGone)
}

func TestPair_Logging(t *testing.T) {
	logger := &testLogger{}
	a, b := NewPair[int](WithName("logged"), WithLogger(logger))

	require.NoError(t, b.Close())
	require.Error(t, a.Send(1))

	assert.True(t, logger.contains("pair created"))
	assert.True(t, logger.contains("endpoint released"))
	assert.True(t, logger.contains("send failed"))
	assert.True(t, logger.contains("logged"))
}

func sumBySide(t *testing.T, rm metricdata.ResourceMetrics, name string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				side, _ := dp.Attributes.Value("side")
				out[side.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestPair_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	a, b := NewPair[int](WithName("metrics"), WithMeterProvider(mp))

	require.NoError(t, a.Send(1))
	require.NoError(t, a.Send(2))
	require.NoError(t, b.Send(3))
	_, err := b.Recv()
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.Error(t, a.Send(4))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, map[string]int64{"a": 2, "b": 1}, sumBySide(t, rm, "twoway.messages.sent"))
	assert.Equal(t, map[string]int64{"b": 1}, sumBySide(t, rm, "twoway.messages.received"))
	assert.Equal(t, map[string]int64{"a": 1}, sumBySide(t, rm, "twoway.send.failed"))
	assert.Equal(t, map[string]int64{"a": 1, "b": 0}, sumBySide(t, rm, "twoway.endpoints.open"))

	runtime.KeepAlive(a)
}
