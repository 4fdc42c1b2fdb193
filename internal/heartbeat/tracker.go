// Package heartbeat は端末ごとの最終通信時刻を記録する
package heartbeat

import (
	"sort"
	"sync"
	"time"
)

// Liveness は端末の生存状態
type Liveness string

// Liveness の定数定義
const (
	Alive   Liveness = "alive"   // 閾値以内に通信あり
	Stale   Liveness = "stale"   // 閾値を超えて通信なし
	Unknown Liveness = "unknown" // 一度も通信していない
)

// Status は端末1台分の状態
type Status struct {
	DeviceID   string    `json:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Liveness   Liveness  `json:"liveness"`
}

// Tracker は端末IDをキーに最終通信時刻を保持する
// レコードは追加・更新のみで削除しない
type Tracker struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewTracker は新しいTrackerを作成する
func NewTracker() *Tracker {
	return &Tracker{
		seen: make(map[string]time.Time),
	}
}

// Record は端末の通信を記録する
// 遅れて届いた古い時刻で巻き戻すことはない
func (t *Tracker) Record(deviceID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.seen[deviceID]; ok && last.After(now) {
		return
	}
	t.seen[deviceID] = now
}

// LastSeen は最終通信時刻を返す
func (t *Tracker) LastSeen(deviceID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.seen[deviceID]
	return last, ok
}

// Liveness は端末の生存状態を判定する
func (t *Tracker) Liveness(deviceID string, now time.Time, threshold time.Duration) Liveness {
	last, ok := t.LastSeen(deviceID)
	return classify(last, ok, now, threshold)
}

// Snapshot は記録済みの全端末の状態をID順に返す
func (t *Tracker) Snapshot(now time.Time, threshold time.Duration) []Status {
	t.mu.RLock()
	statuses := make([]Status, 0, len(t.seen))
	for id, last := range t.seen {
		statuses = append(statuses, Status{
			DeviceID:   id,
			LastSeenAt: last,
			Liveness:   classify(last, true, now, threshold),
		})
	}
	t.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].DeviceID < statuses[j].DeviceID
	})

	return statuses
}

func classify(last time.Time, ok bool, now time.Time, threshold time.Duration) Liveness {
	switch {
	case !ok:
		return Unknown
	case now.Sub(last) > threshold:
		return Stale
	default:
		return Alive
	}
}
