// Package dispatch は全端末へのキャプチャ指示を並行に発行する
package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"capturehub/internal/device"
	"capturehub/internal/logger"
)

// Outcome は端末1台分の結果の種類
type Outcome string

// Outcome の定数定義
const (
	OutcomeSuccess      Outcome = "success"       // 2xxの応答
	OutcomeHTTPError    Outcome = "http_error"    // 2xx以外の応答
	OutcomeNetworkError Outcome = "network_error" // 接続失敗など
	OutcomeTimeout      Outcome = "timeout"       // 期限内に応答なし
)

// Result は端末1台分の結果
type Result struct {
	DeviceID   int           `json:"device_id"`
	Endpoint   string        `json:"endpoint"`
	Outcome    Outcome       `json:"outcome"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Capturer は端末1台にキャプチャを指示する
type Capturer interface {
	Capture(ctx context.Context, d device.Device) (int, error)
}

// Metrics はファンアウトの計測値の記録先
type Metrics interface {
	CaptureOutcome(outcome string)
	ObserveFanout(d time.Duration)
}

// Dispatcher は状態を持たないファンアウト実行器
type Dispatcher struct {
	capturer Capturer
	metrics  Metrics
	log      zerolog.Logger
}

// New は新しいDispatcherを作成する
func New(capturer Capturer, metrics Metrics) *Dispatcher {
	return &Dispatcher{
		capturer: capturer,
		metrics:  metrics,
		log:      logger.WithComponent("dispatch"),
	}
}

// CaptureAll は全端末に並行してキャプチャを指示し、端末ごとの結果を返す
// 全体の所要時間はtimeoutで上限が決まり、1台の失敗が他の端末を妨げることはない
// 結果はdevicesと同じ順序で返り、エラーは返さない
func (d *Dispatcher) CaptureAll(ctx context.Context, devices []device.Device, timeout time.Duration) []Result {
	start := time.Now()

	// 呼び出し時点のスナップショットに対して実行する
	targets := make([]device.Device, len(devices))
	copy(targets, devices)
	results := make([]Result, len(targets))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 各ゴルーチンは自分のスロットだけに書き込むので共有ロックは不要
	// 端末ごとの失敗は結果に記録し、グループのエラーにはしない
	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range targets {
		i, dev := i, dev
		g.Go(func() error {
			results[i] = d.captureOne(gctx, dev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.log.Error().Err(err).Msg("キャプチャ指示の待機に失敗しました")
	}

	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.ObserveFanout(elapsed)
	}

	succeeded, failed := Summarize(results)
	d.log.Info().
		Int("devices", len(results)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("キャプチャ指示が完了しました")

	return results
}

// captureOne は端末1台への指示を行い、結果に変換する
func (d *Dispatcher) captureOne(ctx context.Context, dev device.Device) Result {
	start := time.Now()
	status, err := d.capturer.Capture(ctx, dev)

	result := Result{
		DeviceID:   dev.ID,
		Endpoint:   dev.Endpoint,
		StatusCode: status,
		Duration:   time.Since(start),
	}

	switch {
	case err != nil && isTimeout(ctx, err):
		result.Outcome = OutcomeTimeout
		result.Error = err.Error()
	case err != nil:
		result.Outcome = OutcomeNetworkError
		result.Error = err.Error()
	case status >= 200 && status < 300:
		result.Outcome = OutcomeSuccess
	default:
		result.Outcome = OutcomeHTTPError
		result.Error = http.StatusText(status)
	}

	if d.metrics != nil {
		d.metrics.CaptureOutcome(string(result.Outcome))
	}

	if result.Outcome != OutcomeSuccess {
		d.log.Warn().
			Int("device_id", dev.ID).
			Str("endpoint", dev.Endpoint).
			Str("outcome", string(result.Outcome)).
			Int("status", status).
			Str("error", result.Error).
			Msg("端末へのキャプチャ指示に失敗しました")
	}

	return result
}

// isTimeout はエラーが期限切れによるものかを判定する
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Summarize は成功数と失敗数を返す
func Summarize(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Outcome == OutcomeSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
