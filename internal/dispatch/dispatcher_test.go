package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capturehub/internal/device"
)

// newDevice はステータスと遅延を指定した疑似端末を起動する
func newDevice(t *testing.T, status int, delay time.Duration) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func registry(t *testing.T, endpoints ...string) []device.Device {
	t.Helper()
	r, err := device.NewRegistry(endpoints)
	require.NoError(t, err)
	return r.Devices()
}

func TestCaptureAll_OneDeviceFails(t *testing.T) {
	devices := registry(t,
		newDevice(t, http.StatusOK, 0),
		newDevice(t, http.StatusInternalServerError, 0),
		newDevice(t, http.StatusOK, 0),
	)

	const timeout = time.Second
	d := New(device.NewClient(timeout, "/api/take_photo"), nil)

	start := time.Now()
	results := d.CaptureAll(context.Background(), devices, timeout)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.Equal(t, OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, OutcomeHTTPError, results[1].Outcome)
	assert.Equal(t, http.StatusInternalServerError, results[1].StatusCode)
	assert.Equal(t, OutcomeSuccess, results[2].Outcome)
	assert.Less(t, elapsed, timeout)

	succeeded, failed := Summarize(results)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
}

func TestCaptureAll_TimeoutBoundsLatency(t *testing.T) {
	const timeout = 200 * time.Millisecond

	endpoints := []string{}
	for i := 0; i < 8; i++ {
		if i == 3 {
			endpoints = append(endpoints, newDevice(t, http.StatusOK, 5*time.Second))
			continue
		}
		endpoints = append(endpoints, newDevice(t, http.StatusOK, 20*time.Millisecond))
	}
	devices := registry(t, endpoints...)

	d := New(device.NewClient(10*time.Second, "/api/take_photo"), nil)

	start := time.Now()
	results := d.CaptureAll(context.Background(), devices, timeout)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, timeout+300*time.Millisecond, "fan-out must be bounded by the timeout")
	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, i+1, r.DeviceID)
		if i == 3 {
			assert.Equal(t, OutcomeTimeout, r.Outcome)
			continue
		}
		assert.Equal(t, OutcomeSuccess, r.Outcome, "device %d", r.DeviceID)
	}
}

func TestCaptureAll_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	closedURL := srv.URL
	srv.Close()

	devices := registry(t, closedURL, newDevice(t, http.StatusOK, 0))
	d := New(device.NewClient(time.Second, "/api/take_photo"), nil)

	results := d.CaptureAll(context.Background(), devices, time.Second)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeNetworkError, results[0].Outcome)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, OutcomeSuccess, results[1].Outcome)
}

// fakeCapturer は端末IDごとの応答を返す
type fakeCapturer struct {
	calls     atomic.Int32
	responses map[int]func(ctx context.Context) (int, error)
}

func (f *fakeCapturer) Capture(ctx context.Context, d device.Device) (int, error) {
	f.calls.Add(1)
	return f.responses[d.ID](ctx)
}

// recordingMetrics は記録された結果を数える
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	fanouts  int
}

func (m *recordingMetrics) CaptureOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) ObserveFanout(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fanouts++
}

func TestCaptureAll_Classification(t *testing.T) {
	capturer := &fakeCapturer{responses: map[int]func(ctx context.Context) (int, error){
		1: func(context.Context) (int, error) { return http.StatusNoContent, nil },
		2: func(context.Context) (int, error) { return http.StatusServiceUnavailable, nil },
		3: func(context.Context) (int, error) { return 0, errors.New("connection refused") },
		4: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}}
	metrics := &recordingMetrics{outcomes: map[string]int{}}

	devices := []device.Device{
		{ID: 1, Endpoint: "http://a"},
		{ID: 2, Endpoint: "http://b"},
		{ID: 3, Endpoint: "http://c"},
		{ID: 4, Endpoint: "http://d"},
	}

	results := New(capturer, metrics).CaptureAll(context.Background(), devices, 50*time.Millisecond)

	require.Len(t, results, 4)
	assert.Equal(t, OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, OutcomeHTTPError, results[1].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, results[1].StatusCode)
	assert.Equal(t, OutcomeNetworkError, results[2].Outcome)
	assert.Equal(t, OutcomeTimeout, results[3].Outcome)

	assert.Equal(t, int32(4), capturer.calls.Load())
	assert.Equal(t, 1, metrics.fanouts)
	assert.Equal(t, map[string]int{
		"success":       1,
		"http_error":    1,
		"network_error": 1,
		"timeout":       1,
	}, metrics.outcomes)
}

func TestCaptureAll_NoDevices(t *testing.T) {
	results := New(&fakeCapturer{}, nil).CaptureAll(context.Background(), nil, time.Second)
	assert.Empty(t, results)
}

func TestCaptureAll_CallerCancelReachesEveryDevice(t *testing.T) {
	block := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	capturer := &fakeCapturer{responses: map[int]func(ctx context.Context) (int, error){
		1: block,
		2: block,
		3: block,
	}}
	devices := []device.Device{
		{ID: 1, Endpoint: "http://a"},
		{ID: 2, Endpoint: "http://b"},
		{ID: 3, Endpoint: "http://c"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	results := New(capturer, nil).CaptureAll(ctx, devices, 10*time.Second)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "caller cancel must end the fan-out")
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.DeviceID)
		assert.Equal(t, OutcomeNetworkError, r.Outcome)
		assert.Equal(t, context.Canceled.Error(), r.Error)
	}
	assert.Equal(t, int32(3), capturer.calls.Load())
}
