package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

func inputTensor(t *testing.T) *tensor.Tensor {
	t.Helper()
	in, err := tensor.New("", []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 1, 3, 1, 2)
	require.NoError(t, err)
	return in
}

func TestEnsureLoadedSingleFlight(t *testing.T) {
	var loads int32
	mock := NewMock()
	release := make(chan struct{})
	adapter := NewAdapter(func(ctx context.Context) (Session, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return mock, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	sessions := make([]Session, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = adapter.EnsureLoaded(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, mock, sessions[i])
	}
	assert.True(t, adapter.Loaded())
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	var loads int
	mock := NewMock()
	adapter := NewAdapter(func(ctx context.Context) (Session, error) {
		loads++
		if loads == 1 {
			return nil, errors.New("file not found")
		}
		return mock, nil
	})

	_, err := adapter.EnsureLoaded(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ModelLoadError))
	assert.False(t, adapter.Loaded())

	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Same(t, mock, s)

	_, err = adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestEnsureLoadedKeepsClassifiedError(t *testing.T) {
	want := apperr.NewModelLoadError(errors.New("bad proto"), "parse failed")
	adapter := NewAdapter(func(ctx context.Context) (Session, error) { return nil, want })

	_, err := adapter.EnsureLoaded(context.Background())
	assert.Same(t, want, err)
}

func TestEnsureLoadedNilLoader(t *testing.T) {
	_, err := NewAdapter(nil).EnsureLoaded(context.Background())
	assert.True(t, errors.Is(err, apperr.ModelLoadError))
}

func TestEvaluateUsesDeclaredNames(t *testing.T) {
	mock := NewMock()
	mock.Input, mock.Output = "content_image", "stylized_image"
	adapter := NewAdapter(MockLoader(mock))

	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	in := inputTensor(t)
	res, err := adapter.Evaluate(context.Background(), s, in)
	require.NoError(t, err)

	require.Contains(t, mock.LastFeeds, "content_image")
	assert.Len(t, mock.LastFeeds, 1)
	assert.Equal(t, "stylized_image", res.Output.Name)
	assert.Equal(t, in.Data, res.Output.Data)
	assert.Greater(t, res.Seconds(), 0.0)
}

func TestEvaluateMeasuresRunOnly(t *testing.T) {
	mock := NewMock()
	mock.Delay = 30 * time.Millisecond
	adapter := NewAdapter(MockLoader(mock))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	res, err := adapter.Evaluate(context.Background(), s, inputTensor(t))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Elapsed, 30*time.Millisecond)
	assert.Less(t, res.Elapsed, time.Second)
}

func TestEvaluateRunFailure(t *testing.T) {
	mock := NewMock()
	mock.SetError("CUDA out of memory")
	adapter := NewAdapter(MockLoader(mock))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	_, err = adapter.Evaluate(context.Background(), s, inputTensor(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.InferenceExecutionError))
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.Equal(t, 1, mock.Calls(), "no retry")
}

func TestEvaluateRankMismatch(t *testing.T) {
	mock := NewMock()
	adapter := NewAdapter(MockLoader(mock))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	in, err := tensor.New("", []float32{1, 2, 3}, 3)
	require.NoError(t, err)

	_, err = adapter.Evaluate(context.Background(), s, in)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))
	assert.Equal(t, 0, mock.Calls())
}

func TestEvaluateInvalidInput(t *testing.T) {
	adapter := NewAdapter(MockLoader(NewMock()))
	s, _ := adapter.EnsureLoaded(context.Background())

	bad := &tensor.Tensor{ElementType: tensor.Float32, Data: []float32{1}, Shape: []int64{1, 3, 1, 1}}
	_, err := adapter.Evaluate(context.Background(), s, bad)
	assert.True(t, errors.Is(err, apperr.InvalidDimensions))
}

func TestEvaluateMissingOutput(t *testing.T) {
	adapter := NewAdapter(nil)
	_, err := adapter.Evaluate(context.Background(), &namelessSession{}, inputTensor(t))
	assert.True(t, errors.Is(err, apperr.InferenceExecutionError))

	_, err = adapter.Evaluate(context.Background(), nil, inputTensor(t))
	assert.True(t, errors.Is(err, apperr.InferenceExecutionError))
}

func TestEvaluateTimeout(t *testing.T) {
	mock := NewMock()
	mock.Delay = 200 * time.Millisecond
	adapter := NewAdapter(MockLoader(mock), WithTimeout(20*time.Millisecond))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = adapter.Evaluate(context.Background(), s, inputTensor(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.InferenceExecutionError))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestEvaluateCancelledContext(t *testing.T) {
	mock := NewMock()
	adapter := NewAdapter(MockLoader(mock))
	s, _ := adapter.EnsureLoaded(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Evaluate(ctx, s, inputTensor(t))
	assert.True(t, errors.Is(err, apperr.InferenceExecutionError))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, mock.Calls())
}

func TestEvaluateSerialized(t *testing.T) {
	session := &concurrencySession{MockSession: NewMock()}
	session.Delay = 10 * time.Millisecond
	adapter := NewAdapter(MockLoader(session), WithSerializedEvaluate(true))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	in := inputTensor(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.Evaluate(context.Background(), s, in)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&session.peak))
}

func TestCloseClosesSession(t *testing.T) {
	mock := NewMock()
	adapter := NewAdapter(MockLoader(mock))
	require.NoError(t, adapter.Close())

	_, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NoError(t, adapter.Close())
	assert.True(t, mock.Closed)
	assert.False(t, adapter.Loaded())
}

// namelessSession declares no inputs or outputs.
type namelessSession struct{ MockSession }

func (*namelessSession) InputNames() []string  { return nil }
func (*namelessSession) OutputNames() []string { return nil }

// concurrencySession records the peak number of concurrent Run calls.
type concurrencySession struct {
	*MockSession
	active int32
	peak   int32
}

func (c *concurrencySession) Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	n := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	return c.MockSession.Run(feeds)
}

// trackingSession records whether Close ran while a Run was still in progress.
type trackingSession struct {
	*MockSession
	running        int32
	closedMidRun   int32
	closedAfterRun int32
}

func (s *trackingSession) Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	atomic.StoreInt32(&s.running, 1)
	defer atomic.StoreInt32(&s.running, 0)
	return s.MockSession.Run(feeds)
}

func (s *trackingSession) Close() error {
	if atomic.LoadInt32(&s.running) == 1 {
		atomic.StoreInt32(&s.closedMidRun, 1)
	} else {
		atomic.StoreInt32(&s.closedAfterRun, 1)
	}
	return s.MockSession.Close()
}

func TestCloseWaitsForTimedOutRun(t *testing.T) {
	session := &trackingSession{MockSession: NewMock()}
	session.Delay = 150 * time.Millisecond
	adapter := NewAdapter(MockLoader(session), WithTimeout(10*time.Millisecond))
	s, err := adapter.EnsureLoaded(context.Background())
	require.NoError(t, err)

	_, err = adapter.Evaluate(context.Background(), s, inputTensor(t))
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, adapter.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&session.closedMidRun))
	assert.Equal(t, int32(1), atomic.LoadInt32(&session.closedAfterRun))
}
