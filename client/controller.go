package client

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"orbit-api/domain"
)

// FailurePolicy decides how the controller restores truth after a
// failed optimistic mutation. One policy applies to every mutation the
// controller performs.
type FailurePolicy string

const (
	// PolicyRollback restores the pre-mutation local state.
	PolicyRollback FailurePolicy = "rollback"
	// PolicyRefetch replaces local state with a fresh server listing.
	PolicyRefetch FailurePolicy = "refetch"
)

// itemAPI is the slice of Client the controller needs.
type itemAPI interface {
	ListItems(ctx context.Context, f ItemFilter) ([]domain.Item, error)
	CreateItem(ctx context.Context, req CreateItemRequest, idempotencyKey string) (domain.Item, error)
	UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) (domain.Item, error)
	DeleteItem(ctx context.Context, id string, cascade bool) error
}

// Controller keeps a client-local ordered item list in sync with the
// server while hiding network latency. Mutations apply locally first;
// the matching request reconciles or reverts them.
type Controller struct {
	mu       sync.Mutex
	api      itemAPI
	policy   FailurePolicy
	log      *log.Logger
	items    []domain.Item
	resolved map[string]string // placeholder id -> server id
}

// NewController creates a Controller with the given failure policy.
func NewController(api itemAPI, policy FailurePolicy, logger *log.Logger) *Controller {
	if policy == "" {
		policy = PolicyRefetch
	}
	if logger == nil {
		logger = log.New()
	}
	return &Controller{
		api:      api,
		policy:   policy,
		log:      logger,
		resolved: make(map[string]string),
	}
}

// Items returns a copy of the local state.
func (c *Controller) Items() []domain.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Item, len(c.items))
	copy(out, c.items)
	return out
}

// Refresh replaces local state with the server listing.
func (c *Controller) Refresh(ctx context.Context) error {
	items, err := c.api.ListItems(ctx, ItemFilter{})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// ResolvePlaceholder reports the server id a placeholder resolved to,
// if its create request has completed.
func (c *Controller) ResolvePlaceholder(placeholderID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resolved[placeholderID]
	return id, ok
}

// Create appends a placeholder immediately, then reconciles it with
// the server record. On failure the placeholder is removed and the
// error returned; there is no automatic retry.
func (c *Controller) Create(ctx context.Context, req CreateItemRequest) (domain.Item, error) {
	tmp := domain.Item{
		ID:           domain.NewPlaceholderID(),
		Text:         req.Text,
		ParentID:     req.ParentID,
		Status:       req.Status,
		Origin:       req.Origin,
		ScheduledFor: req.ScheduledFor,
	}
	c.mu.Lock()
	c.items = append(c.items, tmp)
	c.mu.Unlock()

	created, err := c.api.CreateItem(ctx, req, tmp.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.removeLocked(tmp.ID)
		return domain.Item{}, err
	}
	c.replaceLocked(tmp.ID, created)
	c.resolved[tmp.ID] = created.ID
	return created, nil
}

// Update applies the field change locally, then sends it. On failure
// the configured policy restores truth.
func (c *Controller) Update(ctx context.Context, id string, upd domain.ItemUpdate) error {
	c.mu.Lock()
	snapshot := make([]domain.Item, len(c.items))
	copy(snapshot, c.items)
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i] = upd.Apply(c.items[i])
			break
		}
	}
	c.mu.Unlock()

	if _, err := c.api.UpdateItem(ctx, id, upd); err != nil {
		c.recover(ctx, snapshot, err)
		return err
	}
	return nil
}

// Delete removes the item locally at once. Placeholders skip the
// network entirely since no server row exists yet.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	snapshot := make([]domain.Item, len(c.items))
	copy(snapshot, c.items)
	c.removeLocked(id)
	c.mu.Unlock()

	if domain.IsPlaceholderID(id) {
		return nil
	}
	if err := c.api.DeleteItem(ctx, id, false); err != nil {
		c.recover(ctx, snapshot, err)
		return err
	}
	return nil
}

// BulkCreate creates one placeholder per text, fires the create
// requests concurrently, and reconciles once all settle. Failed
// entries vanish without error; the successes are returned.
func (c *Controller) BulkCreate(ctx context.Context, texts []string) []domain.Item {
	placeholders := make([]string, len(texts))
	c.mu.Lock()
	for i, text := range texts {
		tmp := domain.Item{ID: domain.NewPlaceholderID(), Text: text}
		placeholders[i] = tmp.ID
		c.items = append(c.items, tmp)
	}
	c.mu.Unlock()

	results := make([]*domain.Item, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			created, err := c.api.CreateItem(ctx, CreateItemRequest{Text: text}, placeholders[i])
			if err != nil {
				c.log.Warnf("bulk create failed for %q: %v", text, err)
				return
			}
			results[i] = &created
		}(i, text)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pid := range placeholders {
		c.removeLocked(pid)
	}
	created := make([]domain.Item, 0, len(texts))
	for i, r := range results {
		if r == nil {
			continue
		}
		c.items = append(c.items, *r)
		c.resolved[placeholders[i]] = r.ID
		created = append(created, *r)
	}
	return created
}

func (c *Controller) recover(ctx context.Context, snapshot []domain.Item, cause error) {
	switch c.policy {
	case PolicyRollback:
		c.mu.Lock()
		c.items = snapshot
		c.mu.Unlock()
	case PolicyRefetch:
		if err := c.Refresh(ctx); err != nil {
			c.log.Errorf("refetch after failed mutation (%v) also failed: %v", cause, err)
		}
	}
}

// removeLocked and replaceLocked require c.mu held.
func (c *Controller) removeLocked(id string) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Controller) replaceLocked(id string, with domain.Item) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i] = with
			return
		}
	}
	// The placeholder was deleted while the create was in flight;
	// surface the server record anyway.
	c.items = append(c.items, with)
}
