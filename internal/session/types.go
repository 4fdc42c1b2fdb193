package session

import (
	"time"
)

// ReasonCooldown はクールダウン中に拒否した理由
const ReasonCooldown = "cooldown active"

// Session はキャプチャセッション
type Session struct {
	ID           string    `json:"id"`            // 一意なトークン（UUIDv7）
	CreatedAt    time.Time `json:"created_at"`    // 作成時刻
	StoragePath  string    `json:"storage_path"`  // 画像の保存先
	IdleDeadline time.Time `json:"idle_deadline"` // これを過ぎると閉じる
}

// Decision はモーションイベントに対する判定結果
type Decision struct {
	Accepted   bool          // 受け付けたかどうか
	SessionID  string        // 受け付けた場合のセッションID
	Created    bool          // 新しいセッションを開始した場合true
	Reason     string        // 拒否した理由
	RetryAfter time.Duration // クールダウンの残り時間
}

// Store はセッションの保存領域を扱う
type Store interface {
	// NamespacePath は保存先のパスを返す（I/Oなし）
	NamespacePath(sessionID string) string

	// EnsureNamespace は保存先を実際に作成する
	EnsureNamespace(sessionID string) error
}

// Hooks は状態遷移の通知先（mutexの外から、遷移と同じ順序で呼ばれる）
// フックの中から新しいセッションを開始・終了させてはならない
type Hooks struct {
	OnOpen  func(Session)
	OnClose func(Session)
}

// Metrics はセッション関連の計測値の記録先
type Metrics interface {
	MotionAccepted()
	MotionThrottled()
	SessionOpened()
	SessionClosed()
}

// Options はManagerの設定
type Options struct {
	Cooldown    time.Duration
	IdleTimeout time.Duration
	Store       Store
	Hooks       Hooks
	Metrics     Metrics

	// テスト用の差し替え
	Now   func() time.Time
	NewID func() string
}
