//go:build unit

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-mailer/internal/mail"
	"campaign-mailer/internal/testutils/mocks"
)

type waitRecorder struct {
	calls     []time.Duration
	sentSoFar []int
	transport *mocks.TransportMock
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.calls = append(w.calls, d)
	w.sentSoFar = append(w.sentSoFar, w.transport.CallCount())
	return nil
}

func (w *waitRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range w.calls {
		sum += d
	}
	return sum
}

func newTestDispatcher(t *testing.T, transport *mocks.TransportMock) (*Dispatcher, *waitRecorder) {
	t.Helper()
	_, logger := mocks.NewLoggerMock()
	waits := &waitRecorder{transport: transport}
	d := New(transport, WithLogger(logger))
	d.wait = waits.wait
	return d, waits
}

func recipientsOf(n int) []string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("user%d@example.com", i)
	}
	return list
}

func TestDispatchAllSucceed(t *testing.T) {
	buf, logger := mocks.NewLoggerMock()
	transport := mocks.NewTransportMock()
	sut := New(transport, WithLogger(logger))
	waits := &waitRecorder{transport: transport}
	sut.wait = waits.wait

	res := sut.Dispatch(context.TODO(), []string{"a@x.com", "b@x.com", "c@x.com"}, "Hello", "<p>hi</p>", Config{BatchSize: 2, Delay: time.Second})

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Successful)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 1, res.Delays)
	assert.Equal(t, []int{2}, waits.sentSoFar)
	require.Len(t, res.Outcomes, 3)
	for i, r := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		assert.Equal(t, r, res.Outcomes[i].Recipient)
		assert.True(t, res.Outcomes[i].Success)
		assert.Equal(t, "<"+r+">", res.Outcomes[i].MessageID)
		assert.Equal(t, "250 OK", res.Outcomes[i].Response)
		assert.Empty(t, res.Outcomes[i].Reason)
	}
	assert.Equal(t,
		"level=INFO msg=\"sending to 3 recipients in batches of 2\"\nlevel=INFO msg=\"batch 1 sent (2/3)\"\nlevel=INFO msg=\"batch 2 sent (3/3)\"",
		strings.TrimSpace(buf.String()),
	)
}

func TestDispatchSingleRecipientFailure(t *testing.T) {
	buf, logger := mocks.NewLoggerMock()
	transport := mocks.NewTransportMock(mocks.FailFor("b@x.com", errors.New("some send error")))
	sut := New(transport, WithLogger(logger))
	sut.wait = func(context.Context, time.Duration) error { return nil }

	res := sut.Dispatch(context.TODO(), []string{"a@x.com", "b@x.com", "c@x.com"}, "Hello", "<p>hi</p>", Config{BatchSize: 2})

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Outcomes[0].Success)
	assert.False(t, res.Outcomes[1].Success)
	assert.Equal(t, "some send error", res.Outcomes[1].Reason)
	assert.Empty(t, res.Outcomes[1].MessageID)
	assert.True(t, res.Outcomes[2].Success)
	assert.Equal(t, 3, transport.CallCount())
	assert.Contains(t, buf.String(), "level=WARN msg=\"failed to send, error: some send error\" recipient=b@x.com")
}

func TestDispatchEmptyRecipientList(t *testing.T) {
	transport := mocks.NewTransportMock()
	sut, waits := newTestDispatcher(t, transport)

	res := sut.Dispatch(context.TODO(), nil, "Hello", "<p>hi</p>", Config{BatchSize: 10, Delay: time.Second})

	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 0, res.Successful)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Batches)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, waits.calls)
	assert.Equal(t, 0, transport.CallCount())
}

func TestDispatchAlwaysFailingTransport(t *testing.T) {
	for _, n := range []int{1, 2, 7, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			transport := mocks.NewTransportMock(mocks.FailAll(errors.New("connection refused")))
			sut, _ := newTestDispatcher(t, transport)

			res := sut.Dispatch(context.TODO(), recipientsOf(n), "s", "h", Config{BatchSize: 3})

			assert.Equal(t, n, res.Total)
			assert.Equal(t, 0, res.Successful)
			assert.Equal(t, n, res.Failed)
			assert.Len(t, res.Outcomes, n)
			for _, o := range res.Outcomes {
				assert.Equal(t, "connection refused", o.Reason)
			}
		})
	}
}

func TestDispatchBatchPartitioning(t *testing.T) {
	cases := []struct {
		n, batchSize     int
		expectedBatches  int
		expectedLastSize int
	}{
		{n: 1, batchSize: 1, expectedBatches: 1, expectedLastSize: 1},
		{n: 10, batchSize: 10, expectedBatches: 1, expectedLastSize: 10},
		{n: 25, batchSize: 10, expectedBatches: 3, expectedLastSize: 5},
		{n: 30, batchSize: 10, expectedBatches: 3, expectedLastSize: 10},
		{n: 7, batchSize: 3, expectedBatches: 3, expectedLastSize: 1},
		{n: 4, batchSize: 50, expectedBatches: 1, expectedLastSize: 4},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("n=%d,b=%d", c.n, c.batchSize), func(t *testing.T) {
			transport := mocks.NewTransportMock()
			sut, waits := newTestDispatcher(t, transport)

			res := sut.Dispatch(context.TODO(), recipientsOf(c.n), "s", "h", Config{BatchSize: c.batchSize})

			assert.Equal(t, c.expectedBatches, res.Batches)
			assert.Equal(t, c.expectedBatches-1, res.Delays)
			assert.Len(t, waits.calls, c.expectedBatches-1)

			boundaries := append(append([]int{0}, waits.sentSoFar...), transport.CallCount())
			for i := 1; i < len(boundaries)-1; i++ {
				assert.Equal(t, c.batchSize, boundaries[i]-boundaries[i-1])
			}
			assert.Equal(t, c.expectedLastSize, boundaries[len(boundaries)-1]-boundaries[len(boundaries)-2])
		})
	}
}

func TestDispatchPreservesRecipientOrder(t *testing.T) {
	transport := mocks.NewTransportMock(mocks.Latency(2 * time.Millisecond))
	sut, _ := newTestDispatcher(t, transport)
	recipients := recipientsOf(23)

	res := sut.Dispatch(context.TODO(), recipients, "s", "h", Config{BatchSize: 5})

	require.Len(t, res.Outcomes, len(recipients))
	for i, r := range recipients {
		assert.Equal(t, r, res.Outcomes[i].Recipient)
		assert.Equal(t, "<"+r+">", res.Outcomes[i].MessageID)
	}
}

func TestDispatchPacingUsesFixedDelayBetweenBatchesOnly(t *testing.T) {
	transport := mocks.NewTransportMock()
	sut, waits := newTestDispatcher(t, transport)

	res := sut.Dispatch(context.TODO(), recipientsOf(25), "s", "h", Config{BatchSize: 10, Delay: 1000 * time.Millisecond})

	assert.Equal(t, 25, res.Successful)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits.calls)
	assert.Equal(t, 2*time.Second, waits.total())
	assert.Equal(t, 2, res.Delays)
}

func TestDispatchPacingRealClock(t *testing.T) {
	_, logger := mocks.NewLoggerMock()
	transport := mocks.NewTransportMock()
	sut := New(transport, WithLogger(logger))

	startedAt := time.Now()
	res := sut.Dispatch(context.TODO(), recipientsOf(25), "s", "h", Config{BatchSize: 10, Delay: 30 * time.Millisecond})
	elapsed := time.Since(startedAt)

	assert.Equal(t, 2, res.Delays)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestDispatchSendsBatchConcurrently(t *testing.T) {
	transport := mocks.NewTransportMock(mocks.Latency(30 * time.Millisecond))
	sut, _ := newTestDispatcher(t, transport)

	sut.Dispatch(context.TODO(), recipientsOf(12), "s", "h", Config{BatchSize: 6})

	assert.Greater(t, transport.MaxInFlight(), 1)
	assert.LessOrEqual(t, transport.MaxInFlight(), 6)
}

func TestDispatchNonPositiveBatchSizeIsTreatedAsOne(t *testing.T) {
	for _, size := range []int{0, -4} {
		transport := mocks.NewTransportMock()
		sut, waits := newTestDispatcher(t, transport)

		res := sut.Dispatch(context.TODO(), recipientsOf(3), "s", "h", Config{BatchSize: size, Delay: -time.Second})

		assert.Equal(t, 3, res.Batches)
		assert.Equal(t, []time.Duration{0, 0}, waits.calls)
		assert.Equal(t, 3, res.Successful)
	}
}

func TestDispatchCarriesEnvelopeFields(t *testing.T) {
	transport := mocks.NewTransportMock()
	sut, _ := newTestDispatcher(t, transport)
	cfg := Config{
		BatchSize: 2,
		Tags:      []string{"event", "bulk", "modern"},
		Metadata:  map[string]string{"campaign": "event-2026"},
		Text:      "body",
	}

	sut.Dispatch(context.TODO(), []string{"a@x.com", "b@x.com"}, "Subject line", "<p>body</p>", cfg)

	calls := transport.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "Subject line", c.Subject)
		assert.Equal(t, "<p>body</p>", c.HTML)
		assert.Equal(t, "body", c.Text)
		assert.Equal(t, cfg.Tags, c.Tags)
		assert.Equal(t, cfg.Metadata, c.Metadata)
	}
}

func TestDispatchInterruptedDuringDelay(t *testing.T) {
	transport := mocks.NewTransportMock()
	sut, _ := newTestDispatcher(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sut.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleep(ctx, d)
	}

	res := sut.Dispatch(ctx, recipientsOf(5), "s", "h", Config{BatchSize: 2, Delay: time.Hour})

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 2, transport.CallCount())
	assert.Equal(t, context.Canceled.Error(), res.Outcomes[4].Reason)
	assert.Equal(t, res.Total, res.Successful+res.Failed)
}

func TestDispatchAlreadyCancelledContext(t *testing.T) {
	transport := mocks.NewTransportMock()
	sut, _ := newTestDispatcher(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := sut.Dispatch(ctx, recipientsOf(3), "s", "h", Config{BatchSize: 2})

	assert.Equal(t, 0, transport.CallCount())
	assert.Equal(t, 3, res.Failed)
	assert.Len(t, res.Outcomes, 3)
}

type recorderMock struct {
	mu        sync.Mutex
	successes int
	failures  int
	batches   []int
}

func (r *recorderMock) ObserveOutcome(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.successes++
	} else {
		r.failures++
	}
}

func (r *recorderMock) ObserveBatch(size int, _ time.Duration) {
	r.batches = append(r.batches, size)
}

type panickingTransport struct{}

func (panickingTransport) Send(context.Context, mail.Envelope) (mail.Receipt, error) {
	panic("provider exploded")
}

func TestDispatchRecoversFromTransportPanic(t *testing.T) {
	_, logger := mocks.NewLoggerMock()
	sut := New(panickingTransport{}, WithLogger(logger))

	res := sut.Dispatch(context.TODO(), []string{"a@x.com"}, "s", "h", Config{BatchSize: 1})

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "transport panic: provider exploded", res.Outcomes[0].Reason)
}

func TestDispatchRecordsRecorderObservations(t *testing.T) {
	transport := mocks.NewTransportMock(mocks.FailFor("user1@example.com", errors.New("boom")))
	rec := &recorderMock{}
	_, logger := mocks.NewLoggerMock()
	sut := New(transport, WithLogger(logger), WithRecorder(rec))
	sut.wait = func(context.Context, time.Duration) error { return nil }

	sut.Dispatch(context.TODO(), recipientsOf(4), "s", "h", Config{BatchSize: 3})

	assert.Equal(t, 3, rec.successes)
	assert.Equal(t, 1, rec.failures)
	assert.Equal(t, []int{3, 1}, rec.batches)
}

func TestSleepReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
