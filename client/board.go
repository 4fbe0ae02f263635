package client

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"orbit-api/domain"
)

const (
	placeholderRetryAttempts = 3
	defaultRetryDelay        = 200 * time.Millisecond
)

// scheduleAPI is the slice of Client the board needs.
type scheduleAPI interface {
	UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) (domain.Item, error)
}

// Resolver maps a placeholder id to its server id once the create
// request behind it has settled.
type Resolver interface {
	ResolvePlaceholder(placeholderID string) (string, bool)
}

// Board buckets items by calendar day and persists drops in the
// background. The drop is complete the moment local state changes;
// persistence failures are logged and never rolled back, so the local
// view can diverge until the next full refetch.
type Board struct {
	mu          sync.Mutex
	api         scheduleAPI
	resolver    Resolver
	log         *log.Logger
	days        map[string][]domain.Item
	onScheduled func(ids []string)
	retryDelay  time.Duration
	wg          sync.WaitGroup
}

// NewBoard creates a Board. The resolver may be nil when placeholder
// items are never dropped.
func NewBoard(api scheduleAPI, resolver Resolver, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.New()
	}
	return &Board{
		api:        api,
		resolver:   resolver,
		log:        logger,
		days:       make(map[string][]domain.Item),
		retryDelay: defaultRetryDelay,
	}
}

// OnScheduled registers a listener notified with the item ids of every
// drop.
func (b *Board) OnScheduled(fn func(ids []string)) {
	b.mu.Lock()
	b.onScheduled = fn
	b.mu.Unlock()
}

// Load rebuilds the day buckets from a full item listing.
func (b *Board) Load(items []domain.Item) {
	days := make(map[string][]domain.Item)
	for _, it := range items {
		if it.ScheduledFor == "" {
			continue
		}
		days[it.ScheduledFor] = append(days[it.ScheduledFor], it)
	}
	b.mu.Lock()
	b.days = days
	b.mu.Unlock()
}

// Day returns a copy of one day bucket.
func (b *Board) Day(day string) []domain.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.days[day]
	out := make([]domain.Item, len(bucket))
	copy(out, bucket)
	return out
}

// Drop schedules items onto a day: local append, listener
// notification, then one background persistence call per item.
func (b *Board) Drop(day string, items ...domain.Item) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	b.mu.Lock()
	for i, it := range items {
		it.ScheduledFor = day
		b.days[day] = append(b.days[day], it)
		ids[i] = it.ID
	}
	listener := b.onScheduled
	b.mu.Unlock()

	if listener != nil {
		listener(ids)
	}
	for _, id := range ids {
		b.wg.Add(1)
		go b.persist(id, day)
	}
}

// Move reassigns an already-scheduled item between two day buckets:
// a remove-then-append pair locally plus one persistence call.
func (b *Board) Move(from, to, id string) {
	b.mu.Lock()
	bucket := b.days[from]
	for i := range bucket {
		if bucket[i].ID == id {
			moved := bucket[i]
			b.days[from] = append(bucket[:i], bucket[i+1:]...)
			moved.ScheduledFor = to
			b.days[to] = append(b.days[to], moved)
			break
		}
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.persist(id, to)
}

// Flush blocks until every background persistence attempt has settled.
// It exists for tests and graceful shutdown.
func (b *Board) Flush() {
	b.wg.Wait()
}

// persist writes the schedule assignment. A placeholder id cannot be
// looked up server-side, so it polls local state for the real id a
// bounded number of times before giving up; the assignment then stays
// local-only.
func (b *Board) persist(id, day string) {
	defer b.wg.Done()

	if domain.IsPlaceholderID(id) {
		resolved := false
		for attempt := 1; attempt <= placeholderRetryAttempts; attempt++ {
			time.Sleep(b.retryDelay * time.Duration(attempt))
			if b.resolver == nil {
				break
			}
			if real, ok := b.resolver.ResolvePlaceholder(id); ok {
				b.swapID(id, real)
				id = real
				resolved = true
				break
			}
		}
		if !resolved {
			b.log.Warnf("schedule for %s not persisted: placeholder never resolved", id)
			return
		}
	}

	upd := domain.ItemUpdate{ScheduledFor: &day}
	if _, err := b.api.UpdateItem(context.Background(), id, upd); err != nil {
		b.log.Errorf("schedule persistence failed for %s: %v", id, err)
	}
}

func (b *Board) swapID(oldID, newID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for day, bucket := range b.days {
		for i := range bucket {
			if bucket[i].ID == oldID {
				b.days[day][i].ID = newID
			}
		}
	}
}
