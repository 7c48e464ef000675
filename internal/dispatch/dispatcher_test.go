package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MikeSquared-Agency/lure/internal/hermes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sendFunc func(ctx context.Context, id string, report []byte) error

func (f sendFunc) Send(ctx context.Context, id string, report []byte) error {
	return f(ctx, id, report)
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]hermes.DeliveryEvent
}

func (r *recorder) Publish(subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]hermes.DeliveryEvent)
	}
	r.events[subject] = append(r.events[subject], data.(hermes.DeliveryEvent))
	return nil
}

func (r *recorder) get(subject string) []hermes.DeliveryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[subject]
}

var fast = Config{Workers: 2, MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

// start runs d until the test ends and returns a channel of settled outcomes.
func start(t *testing.T, d *Dispatcher) <-chan Outcome {
	t.Helper()
	out := make(chan Outcome, 16)
	d.OnOutcome(func(o Outcome) { out <- o })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return out
}

func wait(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery outcome")
		return Outcome{}
	}
}

func TestDispatcher_DeliversOnce(t *testing.T) {
	var calls atomic.Int32
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		calls.Add(1)
		assert.Equal(t, `{"sessionId":"s1"}`, string(report))
		return nil
	}), fast, discard())
	ev := &recorder{}
	d.SetEvents(ev)
	out := start(t, d)

	require.NoError(t, d.Enqueue("s1", []byte(`{"sessionId":"s1"}`)))
	assert.ErrorIs(t, d.Enqueue("s1", []byte(`{"sessionId":"s1"}`)), ErrAlreadyQueued)

	o := wait(t, out)
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, int32(1), calls.Load())

	got, ok := d.Outcome("s1")
	require.True(t, ok)
	assert.Equal(t, StatusDelivered, got.Status)
	require.Len(t, ev.get(hermes.SubjectDelivered), 1)
	assert.Empty(t, ev.get(hermes.SubjectDeliveryFailed))
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		if calls.Add(1) < 3 {
			return &StatusError{Code: http.StatusBadGateway, Body: "upstream down"}
		}
		return nil
	}), fast, discard())
	out := start(t, d)

	require.NoError(t, d.Enqueue("s2", []byte("{}")))

	o := wait(t, out)
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Equal(t, 3, o.Attempts)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		calls.Add(1)
		return errors.New("connection refused")
	}), fast, discard())
	ev := &recorder{}
	d.SetEvents(ev)
	out := start(t, d)

	require.NoError(t, d.Enqueue("s3", []byte("{}")))

	o := wait(t, out)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, fast.MaxAttempts, o.Attempts)
	assert.Equal(t, int32(fast.MaxAttempts), calls.Load())
	assert.Contains(t, o.Error, "connection refused")

	failed := ev.get(hermes.SubjectDeliveryFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "s3", failed[0].SessionID)
	assert.Equal(t, StatusFailed, failed[0].Outcome)
}

func TestDispatcher_PermanentFailureStopsRetries(t *testing.T) {
	var calls atomic.Int32
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		calls.Add(1)
		return &StatusError{Code: http.StatusBadRequest, Body: "schema mismatch"}
	}), fast, discard())
	out := start(t, d)

	require.NoError(t, d.Enqueue("s4", []byte("{}")))

	o := wait(t, out)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_NilSenderSkips(t *testing.T) {
	d := New(nil, fast, discard())
	out := start(t, d)

	require.NoError(t, d.Enqueue("s5", []byte("{}")))

	o := wait(t, out)
	assert.Equal(t, StatusSkipped, o.Status)
	assert.Equal(t, 0, o.Attempts)
}

func TestDispatcher_EnqueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), Config{Workers: 1, MaxAttempts: 1}, discard())
	out := start(t, d)

	begin := time.Now()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, d.Enqueue(id, []byte("{}")))
	}
	assert.True(t, time.Since(begin) < time.Second)

	close(release)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		seen[wait(t, out).SessionID] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcher_StopsWithPendingWork(t *testing.T) {
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		<-ctx.Done()
		return ctx.Err()
	}), Config{Workers: 1, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, discard())
	ev := &recorder{}
	d.SetEvents(ev)
	var settled atomic.Int32
	d.OnOutcome(func(Outcome) { settled.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.NoError(t, d.Enqueue("busy", []byte("{}")))
	require.NoError(t, d.Enqueue("waiting", []byte("{}")))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// nothing was sent to completion, so nothing may be recorded as failed
	assert.Equal(t, int32(0), settled.Load())
	assert.Empty(t, ev.get(hermes.SubjectDeliveryFailed))
	for _, id := range []string{"busy", "waiting"} {
		_, ok := d.Outcome(id)
		assert.False(t, ok, "session %s settled during shutdown", id)
	}
	assert.Equal(t, 2, d.Pending())
	assert.ErrorIs(t, d.Enqueue("busy", []byte("{}")), ErrAlreadyQueued)
}

func TestDispatcher_ResumesAfterRestart(t *testing.T) {
	var calls atomic.Int32
	d := New(sendFunc(func(ctx context.Context, id string, report []byte) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}), Config{Workers: 1, MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.NoError(t, d.Enqueue("r1", []byte("{}")))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 1, d.Pending())

	out := start(t, d)
	o := wait(t, out)
	assert.Equal(t, "r1", o.SessionID)
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestHTTPSender(t *testing.T) {
	var gotKey, gotIdem, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotIdem = r.Header.Get("Idempotency-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("busy"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL+"/ok", "cb-key", time.Second)
	defer s.CloseIdleConnections()
	require.NoError(t, s.Send(context.Background(), "sess-1", []byte(`{"a":1}`)))
	assert.Equal(t, "cb-key", gotKey)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, IdempotencyKey("sess-1"), gotIdem)
	assert.NotEqual(t, IdempotencyKey("sess-2"), gotIdem)

	fail := NewHTTPSender(srv.URL+"/fail", "", time.Second)
	defer fail.CloseIdleConnections()
	err := fail.Send(context.Background(), "sess-1", []byte(`{}`))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "busy", se.Body)
	assert.True(t, se.Retryable())
}

func TestStatusError_Retryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{408, true},
		{400, false},
		{401, false},
		{404, false},
		{422, false},
	}
	for _, tt := range tests {
		if got := (&StatusError{Code: tt.code}).Retryable(); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
