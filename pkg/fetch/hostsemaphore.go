package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostSlot is one host's concurrency gate. active counts held plus waiting
// permits; lastIdle is set on every release and stays zero until then.
type hostSlot struct {
	sem      *semaphore.Weighted
	active   int64
	lastIdle time.Time
}

// HostSemaphorePool caps in-flight requests per host, independently of the
// token-bucket rate budget: the budget paces request starts, the semaphore
// bounds concurrency. One pool is shared by all harvest workers so the
// per-host limit holds globally.
type HostSemaphorePool struct {
	mu    sync.Mutex
	slots map[string]*hostSlot
	limit int64
	log   *logrus.Entry
}

// NewHostSemaphorePool creates a pool enforcing maxPerHost concurrent
// requests per hostname.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		slots: make(map[string]*hostSlot),
		limit: limit,
		log:   log,
	}
}

// slotFor returns the slot for host, creating it on first use, and counts
// the caller as active.
func (p *HostSemaphorePool) slotFor(host string) *hostSlot {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, ok := p.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(p.limit)}
		p.slots[host] = slot
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Tracking new host")
	}
	slot.active++
	return slot
}

// Acquire takes one permit for the host, blocking until a permit frees up
// or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	slot := p.slotFor(host)

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		slot.active--
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release returns one permit for the host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	slot, ok := p.slots[host]
	if !ok {
		p.mu.Unlock()
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	slot.active--
	slot.lastIdle = time.Now()
	p.mu.Unlock()

	slot.sem.Release(1)
}

// RunEviction drops idle host slots every interval until ctx is cancelled.
// Run it in its own goroutine; a long harvest across many hosts would
// otherwise grow the pool without bound.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("Host semaphore eviction goroutine started.")

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			p.log.Infof("Stopping host semaphore eviction: %v", ctx.Err())
			return
		}
	}
}

// evictIdle removes slots with no active permits that have sat idle for
// maxIdle or longer. Slots that were created but never released stay until
// their first release sets lastIdle.
func (p *HostSemaphorePool) evictIdle(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, slot := range p.slots {
		if slot.active == 0 && !slot.lastIdle.IsZero() && now.Sub(slot.lastIdle) >= maxIdle {
			delete(p.slots, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(p.slots))
	}
}

// TrackedHosts returns how many hosts currently hold a slot.
func (p *HostSemaphorePool) TrackedHosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
