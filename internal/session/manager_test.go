package session

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore はEnsureNamespaceの呼び出しを記録する
type fakeStore struct {
	mu      sync.Mutex
	created []string
}

func (s *fakeStore) NamespacePath(id string) string { return "/sessions/" + id }

func (s *fakeStore) EnsureNamespace(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, id)
	return nil
}

func (s *fakeStore) createdIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

func newTestManager(t *testing.T, cooldown, idle time.Duration, hooks Hooks) (*Manager, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	m := NewManager(Options{
		Cooldown:    cooldown,
		IdleTimeout: idle,
		Store:       store,
		Hooks:       hooks,
	})
	t.Cleanup(m.Stop)
	return m, store
}

func TestManager_CooldownRejects(t *testing.T) {
	m, _ := newTestManager(t, time.Second, time.Hour, Hooks{})
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first := m.OnMotionEvent(t0)
	require.True(t, first.Accepted)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.SessionID)

	// 0.5秒後のイベントは拒否される
	second := m.OnMotionEvent(t0.Add(500 * time.Millisecond))
	assert.False(t, second.Accepted)
	assert.Equal(t, ReasonCooldown, second.Reason)
	assert.Equal(t, 500*time.Millisecond, second.RetryAfter)
	assert.Empty(t, second.SessionID)

	// 拒否されたイベントはゲートを更新しない
	third := m.OnMotionEvent(t0.Add(time.Second))
	require.True(t, third.Accepted)
	assert.False(t, third.Created)
	assert.Equal(t, first.SessionID, third.SessionID)
}

func TestManager_AcceptedEventsRespectCooldown(t *testing.T) {
	const cooldown = 200 * time.Millisecond
	m, _ := newTestManager(t, cooldown, time.Hour, Hooks{})

	rng := rand.New(rand.NewSource(42))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var accepted []time.Time
	for i := 0; i < 500; i++ {
		now = now.Add(time.Duration(rng.Intn(150)) * time.Millisecond)
		if d := m.OnMotionEvent(now); d.Accepted {
			accepted = append(accepted, now)
		}
	}

	require.NotEmpty(t, accepted)
	for i := 1; i < len(accepted); i++ {
		gap := accepted[i].Sub(accepted[i-1])
		assert.GreaterOrEqual(t, gap, cooldown, "accepted events %d and %d too close", i-1, i)
	}
}

func TestManager_ConcurrentMotionSingleAccept(t *testing.T) {
	m, store := newTestManager(t, time.Second, time.Hour, Hooks{})
	now := time.Now()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.OnMotionEvent(now).Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Len(t, store.createdIDs(), 1)
}

func TestManager_IdleTimeoutClosesOnce(t *testing.T) {
	var closed atomic.Int32
	var closedID atomic.Value
	m, _ := newTestManager(t, 0, 60*time.Millisecond, Hooks{
		OnClose: func(s Session) {
			closed.Add(1)
			closedID.Store(s.ID)
		},
	})

	first := m.OnMotionEvent(time.Now())
	require.True(t, first.Accepted)

	_, active := m.Current()
	require.True(t, active)

	require.Eventually(t, func() bool {
		_, active := m.Current()
		return !active
	}, time.Second, 5*time.Millisecond)

	// 余分な発火がないことを確認
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, first.SessionID, closedID.Load())

	second := m.OnMotionEvent(time.Now())
	require.True(t, second.Accepted)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestManager_RenewalKeepsSession(t *testing.T) {
	var closed atomic.Int32
	m, _ := newTestManager(t, 0, 150*time.Millisecond, Hooks{
		OnClose: func(Session) { closed.Add(1) },
	})

	first := m.OnMotionEvent(time.Now())
	require.True(t, first.Accepted)

	// アイドルタイムアウトより短い間隔で延長し続ける
	for i := 0; i < 8; i++ {
		time.Sleep(40 * time.Millisecond)
		d := m.OnMotionEvent(time.Now())
		require.True(t, d.Accepted)
		assert.Equal(t, first.SessionID, d.SessionID)
		assert.False(t, d.Created)
	}

	assert.Equal(t, int32(0), closed.Load())
	current, active := m.Current()
	require.True(t, active)
	assert.Equal(t, first.SessionID, current.ID)

	require.Eventually(t, func() bool { return closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_SilenceThenMotionCreatesNewSession(t *testing.T) {
	// アイドル3秒・無音4秒のシナリオを縮小したもの
	m, store := newTestManager(t, 10*time.Millisecond, 60*time.Millisecond, Hooks{})

	first := m.OnMotionEvent(time.Now())
	require.True(t, first.Accepted)

	time.Sleep(80 * time.Millisecond)
	require.Eventually(t, func() bool {
		_, active := m.Current()
		return !active
	}, time.Second, 5*time.Millisecond)

	second := m.OnMotionEvent(time.Now())
	require.True(t, second.Accepted)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, []string{first.SessionID, second.SessionID}, store.createdIDs())
}

func TestManager_CurrentOrFallback(t *testing.T) {
	var opened atomic.Int32
	m, store := newTestManager(t, time.Second, time.Hour, Hooks{
		OnOpen: func(Session) { opened.Add(1) },
	})

	_, active := m.Current()
	require.False(t, active)

	now := time.Now()
	fallback := m.CurrentOrFallback(now)
	require.NotEmpty(t, fallback.ID)
	assert.Equal(t, "/sessions/"+fallback.ID, fallback.StoragePath)
	assert.Equal(t, now.Add(time.Hour), fallback.IdleDeadline)
	assert.Equal(t, []string{fallback.ID}, store.createdIDs())

	again := m.CurrentOrFallback(now.Add(time.Minute))
	assert.Equal(t, fallback.ID, again.ID)
	// フォールバックの参照は期限を延長しない
	assert.Equal(t, fallback.IdleDeadline, again.IdleDeadline)

	// フォールバックはクールダウンに影響しない
	d := m.OnMotionEvent(now)
	require.True(t, d.Accepted)
	assert.Equal(t, fallback.ID, d.SessionID)
	assert.Equal(t, int32(1), opened.Load())
}

func TestManager_ConcurrentFallbackSingleSession(t *testing.T) {
	m, store := newTestManager(t, time.Second, time.Hour, Hooks{})

	ids := make([]string, 32)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = m.CurrentOrFallback(time.Now()).ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.createdIDs(), 1)
}

func TestManager_StaleTimerIgnored(t *testing.T) {
	var closed atomic.Int32
	m, _ := newTestManager(t, 0, time.Hour, Hooks{
		OnClose: func(Session) { closed.Add(1) },
	})

	d := m.OnMotionEvent(time.Now())
	require.True(t, d.Accepted)

	m.mu.Lock()
	staleGeneration := m.generation
	m.mu.Unlock()

	// 延長によって世代が進む
	m.OnMotionEvent(time.Now())

	// 延長前のタイマーが遅れて発火しても閉じない
	m.expire(d.SessionID, staleGeneration)
	_, active := m.Current()
	assert.True(t, active)

	// 別セッションIDのタイマーも無視される
	m.mu.Lock()
	currentGeneration := m.generation
	m.mu.Unlock()
	m.expire("other", currentGeneration)
	_, active = m.Current()
	assert.True(t, active)

	// 最新のタイマーは閉じる
	m.expire(d.SessionID, currentGeneration)
	_, active = m.Current()
	assert.False(t, active)
	assert.Equal(t, int32(1), closed.Load())

	// 二重発火は無視される
	m.expire(d.SessionID, currentGeneration)
	assert.Equal(t, int32(1), closed.Load())
}

func TestManager_CloseIdleSession(t *testing.T) {
	var mu sync.Mutex
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	seq := 0
	m := NewManager(Options{
		Cooldown:    0,
		IdleTimeout: time.Hour,
		Now:         now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		},
	})
	t.Cleanup(m.Stop)

	d := m.OnMotionEvent(now())
	require.Equal(t, "s1", d.SessionID)

	assert.False(t, m.CloseIdleSession("s0"), "unknown id")
	assert.False(t, m.CloseIdleSession("s1"), "deadline not reached")

	advance(30 * time.Minute)
	m.OnMotionEvent(now())
	advance(45 * time.Minute)
	assert.False(t, m.CloseIdleSession("s1"), "renewed session must stay open")

	advance(time.Hour)
	assert.True(t, m.CloseIdleSession("s1"))
	assert.False(t, m.CloseIdleSession("s1"), "already closed")

	d = m.OnMotionEvent(now())
	assert.Equal(t, "s2", d.SessionID)
}

func TestManager_NotificationsFollowTransitionOrder(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	var (
		eventsMu sync.Mutex
		events   []string
	)
	record := func(e string) {
		eventsMu.Lock()
		defer eventsMu.Unlock()
		events = append(events, e)
	}
	snapshot := func() []string {
		eventsMu.Lock()
		defer eventsMu.Unlock()
		return append([]string(nil), events...)
	}

	closing := make(chan struct{})
	release := make(chan struct{})
	seq := 0
	m := NewManager(Options{
		Cooldown:    0,
		IdleTimeout: time.Hour,
		Now:         now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		},
		Hooks: Hooks{
			OnOpen: func(s Session) { record("open:" + s.ID) },
			OnClose: func(s Session) {
				if s.ID == "s1" {
					close(closing)
					<-release
				}
				record("close:" + s.ID)
			},
		},
	})
	t.Cleanup(m.Stop)

	m.OnMotionEvent(now())
	clockMu.Lock()
	clock = clock.Add(2 * time.Hour)
	clockMu.Unlock()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		m.CloseIdleSession("s1")
	}()
	<-closing

	// s1の終了通知が終わるまでs2の開始通知は届かない
	opened := make(chan Session, 1)
	go func() {
		opened <- m.CurrentOrFallback(now())
	}()

	select {
	case <-opened:
		t.Fatal("fallback open notified before the previous close")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []string{"open:s1"}, snapshot())

	close(release)
	<-closed
	sess := <-opened
	assert.Equal(t, "s2", sess.ID)
	assert.Equal(t, []string{"open:s1", "close:s1", "open:s2"}, snapshot())
}
