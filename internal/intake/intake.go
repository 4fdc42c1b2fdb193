// Package intake は端末からアップロードされた画像を受け取り、セッションの保存領域に書き込む
package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"capturehub/internal/logger"
	"capturehub/internal/session"
)

// 受け付けできないペイロード
var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrUndecodable   = errors.New("undecodable payload")
	ErrMissingDevice = errors.New("missing client_id")
)

// 拡張子を判別できない場合の既定値
const defaultExt = ".jpg"

// ファイル名に使う時刻の書式（秒単位）
const timestampLayout = "20060102150405"

// SessionResolver は画像の保存先となるセッションを決める
type SessionResolver interface {
	CurrentOrFallback(now time.Time) session.Session
}

// ImageWriter は画像をセッションの保存領域に書き込む
type ImageWriter interface {
	WriteImage(sessionID, name string, data []byte) (string, error)
}

// Metrics は受信画像の計測値の記録先
type Metrics interface {
	ImageStored(size int)
	ImageRejected()
}

// Stored は保存した画像の情報
type Stored struct {
	Path        string    `json:"file_path"`
	SessionID   string    `json:"session_id"`
	DeviceID    string    `json:"client_id"`
	Size        int       `json:"size"`
	ContentType string    `json:"content_type"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Intake は受信画像の処理を行う
type Intake struct {
	sessions SessionResolver
	writer   ImageWriter
	metrics  Metrics
	now      func() time.Time
	log      zerolog.Logger
}

// New は新しいIntakeを作成する
func New(sessions SessionResolver, writer ImageWriter, metrics Metrics) *Intake {
	return &Intake{
		sessions: sessions,
		writer:   writer,
		metrics:  metrics,
		now:      time.Now,
		log:      logger.WithComponent("intake"),
	}
}

// StoreImage はbase64の画像をデコードし、現在のセッションに保存する
// セッションがなければ新しく作成される
func (in *Intake) StoreImage(ctx context.Context, deviceID, encoded string) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	data, err := decode(deviceID, encoded)
	if err != nil {
		in.reject(deviceID, err)
		return Stored{}, err
	}

	now := in.now()
	sess := in.sessions.CurrentOrFallback(now)

	mt := mimetype.Detect(data)
	name := FileName(deviceID, now, extensionFor(mt))

	path, err := in.writer.WriteImage(sess.ID, name, data)
	if err != nil {
		in.log.Error().Err(err).
			Str("client_id", deviceID).
			Str("session_id", sess.ID).
			Msg("画像の保存に失敗しました")
		return Stored{}, fmt.Errorf("画像の保存に失敗: %w", err)
	}

	if in.metrics != nil {
		in.metrics.ImageStored(len(data))
	}

	in.log.Info().
		Str("client_id", deviceID).
		Str("session_id", sess.ID).
		Str("path", path).
		Int("size", len(data)).
		Str("content_type", mt.String()).
		Msg("画像を保存しました")

	return Stored{
		Path:        path,
		SessionID:   sess.ID,
		DeviceID:    deviceID,
		Size:        len(data),
		ContentType: mt.String(),
		ReceivedAt:  now,
	}, nil
}

func (in *Intake) reject(deviceID string, err error) {
	if in.metrics != nil {
		in.metrics.ImageRejected()
	}
	in.log.Warn().Err(err).Str("client_id", deviceID).Msg("画像を受け付けませんでした")
}

func decode(deviceID, encoded string) ([]byte, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrMissingDevice
	}

	payload := strings.TrimSpace(encoded)
	// data:image/jpeg;base64,... 形式も受け付ける
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	return data, nil
}

func extensionFor(mt *mimetype.MIME) string {
	if mt == nil || !strings.HasPrefix(mt.String(), "image/") || mt.Extension() == "" {
		return defaultExt
	}
	return mt.Extension()
}

// FileName は {端末ID}_{YYYYMMDDhhmmss}{拡張子} の形式のファイル名を返す
// 端末IDのうちファイル名に使えない文字は '_' に置き換える
func FileName(deviceID string, at time.Time, ext string) string {
	return sanitize(deviceID) + "_" + at.Format(timestampLayout) + ext
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "device"
	}
	return out
}
