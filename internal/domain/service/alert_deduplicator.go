package service

import (
	"fmt"
	"sync"
	"time"

	"arbwatch/internal/domain/model"
)

// AlertDeduplicator 告警去重器 - 同一方向在冷却期内不重复告警
// A zero Cooldown disables suppression: every crossing alerts.
//
// An alert goes through Reserve, then Commit once it was actually sent or
// Release when it was dropped or failed. Only Commit starts the cooldown.
type AlertDeduplicator struct {
	mu sync.Mutex

	Cooldown time.Duration
	now      func() time.Time

	lastSent map[model.Direction]time.Time
	pending  map[model.Direction]bool
}

// NewAlertDeduplicator 创建告警去重器
func NewAlertDeduplicator(cooldown time.Duration) *AlertDeduplicator {
	return &AlertDeduplicator{
		Cooldown: cooldown,
		now:      time.Now,
		lastSent: make(map[model.Direction]time.Time),
		pending:  make(map[model.Direction]bool),
	}
}

// withClock replaces the time source.
func (d *AlertDeduplicator) withClock(now func() time.Time) *AlertDeduplicator {
	d.now = now
	return d
}

// Reserve reports whether an alert for dir may go out now and marks it in
// flight if so. The returned reason explains a suppression.
func (d *AlertDeduplicator) Reserve(dir model.Direction) (bool, string) {
	if d.Cooldown <= 0 {
		return true, ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[dir] {
		return false, fmt.Sprintf("alert already in flight (direction: %s)", dir)
	}
	if last, ok := d.lastSent[dir]; ok {
		if since := d.now().Sub(last); since < d.Cooldown {
			return false, fmt.Sprintf("cooldown not met (%.1fs remaining, direction: %s)",
				(d.Cooldown - since).Seconds(), dir)
		}
	}
	d.pending[dir] = true
	return true, ""
}

// Commit records a delivered alert for dir and starts its cooldown.
func (d *AlertDeduplicator) Commit(dir model.Direction) {
	if d.Cooldown <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, dir)
	d.lastSent[dir] = d.now()
}

// Release gives up a reservation without starting the cooldown.
func (d *AlertDeduplicator) Release(dir model.Direction) {
	if d.Cooldown <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, dir)
}
