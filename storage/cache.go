package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"orbit-api/domain"
)

type backend interface {
	ListItems(ctx context.Context, userID string, f ItemFilter) ([]domain.Item, error)
	GetItem(ctx context.Context, userID, id string) (domain.Item, error)
	InsertItem(ctx context.Context, userID string, it domain.Item) (domain.Item, error)
	UpdateItem(ctx context.Context, userID, id string, upd domain.ItemUpdate) (domain.Item, error)
	DeleteItem(ctx context.Context, userID, id string) error
	DeleteAllItems(ctx context.Context, userID string) error
	ListHabits(ctx context.Context, userID string, includeInactive bool) ([]domain.Habit, error)
	InsertHabit(ctx context.Context, userID, name string) (domain.Habit, error)
	UpdateHabit(ctx context.Context, userID, id string, upd HabitUpdate) error
	DeactivateHabit(ctx context.Context, userID, id string) error
	DeleteHabit(ctx context.Context, userID, id string) error
	ToggleCheck(ctx context.Context, userID, habitID, date string) (domain.HabitCheck, error)
}

// Cache wraps a Storage instance with Redis-backed caching for the two
// hot list reads. Mutations pass through and evict the caller's keys.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func itemsCacheKey(userID string) string {
	return "items:" + userID
}

func habitsCacheKey(userID string) string {
	return "habits:" + userID
}

// ListItems serves the unfiltered listing from cache when possible.
// Filtered listings always hit the backing store.
func (c *Cache) ListItems(ctx context.Context, userID string, f ItemFilter) ([]domain.Item, error) {
	if !f.IsZero() {
		return c.base.ListItems(ctx, userID, f)
	}
	if items, ok := c.loadItemsFromCache(ctx, userID); ok {
		return items, nil
	}
	items, err := c.base.ListItems(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	c.storeList(ctx, itemsCacheKey(userID), items)
	return items, nil
}

func (c *Cache) GetItem(ctx context.Context, userID, id string) (domain.Item, error) {
	return c.base.GetItem(ctx, userID, id)
}

func (c *Cache) InsertItem(ctx context.Context, userID string, it domain.Item) (domain.Item, error) {
	created, err := c.base.InsertItem(ctx, userID, it)
	if err != nil {
		return domain.Item{}, err
	}
	c.evict(ctx, itemsCacheKey(userID))
	return created, nil
}

func (c *Cache) UpdateItem(ctx context.Context, userID, id string, upd domain.ItemUpdate) (domain.Item, error) {
	updated, err := c.base.UpdateItem(ctx, userID, id, upd)
	if err != nil {
		return domain.Item{}, err
	}
	c.evict(ctx, itemsCacheKey(userID))
	return updated, nil
}

func (c *Cache) DeleteItem(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteItem(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, itemsCacheKey(userID))
	return nil
}

func (c *Cache) DeleteAllItems(ctx context.Context, userID string) error {
	if err := c.base.DeleteAllItems(ctx, userID); err != nil {
		return err
	}
	c.evict(ctx, itemsCacheKey(userID))
	return nil
}

// ListHabits caches only the default (active-only) listing.
func (c *Cache) ListHabits(ctx context.Context, userID string, includeInactive bool) ([]domain.Habit, error) {
	if includeInactive {
		return c.base.ListHabits(ctx, userID, true)
	}
	if habits, ok := c.loadHabitsFromCache(ctx, userID); ok {
		return habits, nil
	}
	habits, err := c.base.ListHabits(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	c.storeList(ctx, habitsCacheKey(userID), habits)
	return habits, nil
}

func (c *Cache) InsertHabit(ctx context.Context, userID, name string) (domain.Habit, error) {
	habit, err := c.base.InsertHabit(ctx, userID, name)
	if err != nil {
		return domain.Habit{}, err
	}
	c.evict(ctx, habitsCacheKey(userID))
	return habit, nil
}

func (c *Cache) UpdateHabit(ctx context.Context, userID, id string, upd HabitUpdate) error {
	if err := c.base.UpdateHabit(ctx, userID, id, upd); err != nil {
		return err
	}
	c.evict(ctx, habitsCacheKey(userID))
	return nil
}

func (c *Cache) DeactivateHabit(ctx context.Context, userID, id string) error {
	if err := c.base.DeactivateHabit(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, habitsCacheKey(userID))
	return nil
}

func (c *Cache) DeleteHabit(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteHabit(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, habitsCacheKey(userID))
	return nil
}

func (c *Cache) ToggleCheck(ctx context.Context, userID, habitID, date string) (domain.HabitCheck, error) {
	return c.base.ToggleCheck(ctx, userID, habitID, date)
}

func (c *Cache) loadItemsFromCache(ctx context.Context, userID string) ([]domain.Item, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, itemsCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage
			// without failing.
			_ = c.redis.Del(ctx, itemsCacheKey(userID)).Err()
		}
		return nil, false
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		_ = c.redis.Del(ctx, itemsCacheKey(userID)).Err()
		return nil, false
	}
	return items, true
}

func (c *Cache) loadHabitsFromCache(ctx context.Context, userID string) ([]domain.Habit, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, habitsCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, habitsCacheKey(userID)).Err()
		}
		return nil, false
	}
	var habits []domain.Habit
	if err := json.Unmarshal(data, &habits); err != nil {
		_ = c.redis.Del(ctx, habitsCacheKey(userID)).Err()
		return nil, false
	}
	return habits, true
}

func (c *Cache) storeList(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}
