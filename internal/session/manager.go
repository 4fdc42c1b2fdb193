package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"capturehub/internal/logger"
)

// Manager はセッションとクールダウンの唯一の所有者
type Manager struct {
	mu sync.Mutex

	cooldown    time.Duration
	idleTimeout time.Duration
	store       Store
	hooks       Hooks
	metrics     Metrics
	now         func() time.Time
	newID       func() string
	log         zerolog.Logger

	// クールダウンゲート
	lastTrigger  time.Time
	hasTriggered bool

	// アクティブなセッション（nilならNoSession）
	active     *Session
	timer      *time.Timer
	generation uint64
	stopped    bool

	// 開始・終了の通知は遷移の順序どおりに行う
	// nextTicketはmuで、servedはnotifyMuで保護する
	nextTicket uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	served     uint64
}

// NewManager は新しいManagerを作成する
func NewManager(opts Options) *Manager {
	m := &Manager{
		cooldown:    opts.Cooldown,
		idleTimeout: opts.IdleTimeout,
		store:       opts.Store,
		hooks:       opts.Hooks,
		metrics:     opts.Metrics,
		now:         opts.Now,
		newID:       opts.NewID,
		log:         logger.WithComponent("session"),
	}
	m.notifyCond = sync.NewCond(&m.notifyMu)

	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = newSessionID
	}

	return m
}

// newSessionID は作成順に並ぶUUIDv7を生成する
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// OnMotionEvent はモーションイベントを処理する
// クールダウン中は何も変更せずに拒否し、それ以外はセッションを開始または延長する
func (m *Manager) OnMotionEvent(now time.Time) Decision {
	m.mu.Lock()

	if m.hasTriggered {
		if elapsed := now.Sub(m.lastTrigger); elapsed < m.cooldown {
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.MotionThrottled()
			}
			return Decision{
				Reason:     ReasonCooldown,
				RetryAfter: m.cooldown - elapsed,
			}
		}
	}

	m.lastTrigger = now
	m.hasTriggered = true

	sess, created := m.openOrRenewLocked(now)
	var ticket uint64
	if created {
		ticket = m.takeTicketLocked()
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MotionAccepted()
	}
	if created {
		m.inOrder(ticket, func() { m.materialize(sess) })
	} else {
		m.log.Debug().
			Str("session_id", sess.ID).
			Time("idle_deadline", sess.IdleDeadline).
			Msg("セッションを延長しました")
	}

	return Decision{
		Accepted:  true,
		SessionID: sess.ID,
		Created:   created,
	}
}

// CurrentOrFallback はアクティブなセッションを返す
// セッションがなければ新しく開始する（アイドル終了とは排他）
func (m *Manager) CurrentOrFallback(now time.Time) Session {
	m.mu.Lock()

	if m.active != nil {
		sess := *m.active
		m.mu.Unlock()
		return sess
	}

	sess, _ := m.openOrRenewLocked(now)
	ticket := m.takeTicketLocked()
	m.mu.Unlock()

	m.log.Info().Str("session_id", sess.ID).Msg("モーション外の画像受信のためフォールバックセッションを開始します")
	m.inOrder(ticket, func() { m.materialize(sess) })

	return sess
}

// Current はアクティブなセッションを返す
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

// CloseIdleSession はアイドル期限を過ぎたセッションを閉じる
// 既に置き換えられた・閉じられた・延長されたセッションに対しては何もしない
func (m *Manager) CloseIdleSession(sessionID string) bool {
	m.mu.Lock()

	if m.active == nil || m.active.ID != sessionID || m.now().Before(m.active.IdleDeadline) {
		m.mu.Unlock()
		m.log.Debug().Str("session_id", sessionID).Msg("古いアイドル終了要求を無視しました")
		return false
	}

	closed := m.closeLocked()
	ticket := m.takeTicketLocked()
	m.mu.Unlock()

	m.inOrder(ticket, func() { m.notifyClosed(closed) })
	return true
}

// Stop はタイマーを停止する（セッションの状態はそのまま）
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// openOrRenewLocked はセッションを延長、なければ開始する（ロック済み前提）
func (m *Manager) openOrRenewLocked(now time.Time) (Session, bool) {
	if m.active != nil {
		m.active.IdleDeadline = now.Add(m.idleTimeout)
		m.scheduleLocked(m.active.ID)
		return *m.active, false
	}

	id := m.newID()
	path := ""
	if m.store != nil {
		path = m.store.NamespacePath(id)
	}

	m.active = &Session{
		ID:           id,
		CreatedAt:    now,
		StoragePath:  path,
		IdleDeadline: now.Add(m.idleTimeout),
	}
	m.scheduleLocked(id)

	return *m.active, true
}

// scheduleLocked はアイドルタイマーを再設定する（ロック済み前提）
// 停止済みタイマーが既に発火している可能性があるため、世代番号で判定する
func (m *Manager) scheduleLocked(sessionID string) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	m.generation++
	if m.stopped {
		return
	}

	generation := m.generation
	m.timer = time.AfterFunc(m.idleTimeout, func() {
		m.expire(sessionID, generation)
	})
}

// expire はアイドルタイマーから呼ばれる
func (m *Manager) expire(sessionID string, generation uint64) {
	m.mu.Lock()

	if m.active == nil || m.active.ID != sessionID || m.generation != generation {
		m.mu.Unlock()
		m.log.Debug().
			Str("session_id", sessionID).
			Uint64("generation", generation).
			Msg("古いアイドルタイマーの発火を無視しました")
		return
	}

	closed := m.closeLocked()
	ticket := m.takeTicketLocked()
	m.mu.Unlock()

	m.inOrder(ticket, func() { m.notifyClosed(closed) })
}

// closeLocked はアクティブなセッションを閉じる（ロック済み前提）
func (m *Manager) closeLocked() Session {
	closed := *m.active
	m.active = nil
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return closed
}

// takeTicketLocked は開始・終了の通知順を予約する（ロック済み前提）
func (m *Manager) takeTicketLocked() uint64 {
	ticket := m.nextTicket
	m.nextTicket++
	return ticket
}

// inOrder は予約順が回ってくるまで待ってからfnを実行する
// muは保持しないので、fnの中でI/Oを行っても状態遷移は止まらない
// fnから開始・終了を伴う操作を呼ぶと自分の順番を待ち続けるので呼ばないこと
func (m *Manager) inOrder(ticket uint64, fn func()) {
	m.notifyMu.Lock()
	for m.served != ticket {
		m.notifyCond.Wait()
	}
	m.notifyMu.Unlock()

	defer func() {
		m.notifyMu.Lock()
		m.served++
		m.notifyCond.Broadcast()
		m.notifyMu.Unlock()
	}()

	fn()
}

// materialize は保存領域を作成し、開始を通知する（ロックの外で呼ぶ）
func (m *Manager) materialize(sess Session) {
	if m.store != nil {
		if err := m.store.EnsureNamespace(sess.ID); err != nil {
			// 画像の書き込み時にも作成を試みるので、ここでは記録のみ
			m.log.Error().Err(err).Str("session_id", sess.ID).Msg("セッションの保存領域の作成に失敗しました")
		}
	}

	m.log.Info().
		Str("session_id", sess.ID).
		Str("storage_path", sess.StoragePath).
		Time("idle_deadline", sess.IdleDeadline).
		Msg("セッションを開始しました")

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	if m.hooks.OnOpen != nil {
		m.hooks.OnOpen(sess)
	}
}

// notifyClosed は終了を通知する（ロックの外で呼ぶ）
func (m *Manager) notifyClosed(sess Session) {
	m.log.Info().
		Str("session_id", sess.ID).
		Dur("lifetime", m.now().Sub(sess.CreatedAt)).
		Msg("アイドルタイムアウトによりセッションを終了しました")

	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	if m.hooks.OnClose != nil {
		m.hooks.OnClose(sess)
	}
}
