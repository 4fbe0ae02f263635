package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"orbit-api/domain"
)

// ErrNotFound is returned when a requested row does not exist for the
// calling user.
var ErrNotFound = errors.New("not found")

// Tables names the five tables backing the service.
type Tables struct {
	Items    string
	Habits   string
	Checks   string
	Projects string
	Settings string
}

// Storage provides access to the table store and the digest queue.
type Storage struct {
	items       *aztables.Client
	habits      *aztables.Client
	checks      *aztables.Client
	projects    *aztables.Client
	settings    *aztables.Client
	digestQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, digestQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	dq, err := azqueue.NewQueueClientFromConnectionString(connStr, digestQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		items:       svc.NewClient(tables.Items),
		habits:      svc.NewClient(tables.Habits),
		checks:      svc.NewClient(tables.Checks),
		projects:    svc.NewClient(tables.Projects),
		settings:    svc.NewClient(tables.Settings),
		digestQueue: dq,
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// escapeODataString doubles single quotes so user-supplied values are
// safe inside an OData string literal.
func escapeODataString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

type itemEntity struct {
	aztables.Entity
	Text             string `json:"Text"`
	OrderIndex       int    `json:"OrderIndex"`
	ParentID         string `json:"ParentID"`
	Status           string `json:"Status"`
	Origin           string `json:"Origin"`
	ScheduledFor     string `json:"ScheduledFor"`
	AIGenerated      bool   `json:"AIGenerated"`
	IsBreakdown      bool   `json:"IsBreakdown"`
	EstimatedMinutes int    `json:"EstimatedMinutes"`
	SourceType       string `json:"SourceType"`
	SourceID         string `json:"SourceID"`
	CreatedAt        string `json:"CreatedAt"`
}

func itemFromEntity(ent itemEntity) domain.Item {
	created, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	return domain.Item{
		ID:               ent.RowKey,
		UserID:           ent.PartitionKey,
		Text:             ent.Text,
		OrderIndex:       ent.OrderIndex,
		ParentID:         ent.ParentID,
		Status:           domain.NormalizeStatus(domain.ItemStatus(ent.Status)),
		Origin:           domain.ItemOrigin(ent.Origin),
		ScheduledFor:     ent.ScheduledFor,
		AIGenerated:      ent.AIGenerated,
		IsBreakdown:      ent.IsBreakdown,
		EstimatedMinutes: ent.EstimatedMinutes,
		SourceType:       ent.SourceType,
		SourceID:         ent.SourceID,
		CreatedAt:        created,
	}
}

func entityFromItem(it domain.Item) itemEntity {
	return itemEntity{
		Entity:           aztables.Entity{PartitionKey: it.UserID, RowKey: it.ID},
		Text:             it.Text,
		OrderIndex:       it.OrderIndex,
		ParentID:         it.ParentID,
		Status:           string(it.Status),
		Origin:           string(it.Origin),
		ScheduledFor:     it.ScheduledFor,
		AIGenerated:      it.AIGenerated,
		IsBreakdown:      it.IsBreakdown,
		EstimatedMinutes: it.EstimatedMinutes,
		SourceType:       it.SourceType,
		SourceID:         it.SourceID,
		CreatedAt:        it.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ItemFilter narrows an item listing. Zero values mean "no filter".
type ItemFilter struct {
	Status     domain.ItemStatus
	Origin     domain.ItemOrigin
	SourceType string
	SourceID   string
	ParentID   string
}

// IsZero reports whether the filter narrows nothing.
func (f ItemFilter) IsZero() bool {
	return f == ItemFilter{}
}

func buildItemFilter(userID string, f ItemFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PartitionKey eq '%s'", escapeODataString(userID))
	if f.Status != "" {
		// Rows written before the status column existed carry no
		// value and count as ready.
		if f.Status == domain.StatusReady {
			fmt.Fprintf(&b, " and (Status eq '%s' or Status eq '')", domain.StatusReady)
		} else {
			fmt.Fprintf(&b, " and Status eq '%s'", escapeODataString(string(f.Status)))
		}
	}
	if f.Origin != "" {
		fmt.Fprintf(&b, " and Origin eq '%s'", escapeODataString(string(f.Origin)))
	}
	if f.SourceType != "" {
		fmt.Fprintf(&b, " and SourceType eq '%s'", escapeODataString(f.SourceType))
	}
	if f.SourceID != "" {
		fmt.Fprintf(&b, " and SourceID eq '%s'", escapeODataString(f.SourceID))
	}
	if f.ParentID != "" {
		fmt.Fprintf(&b, " and ParentID eq '%s'", escapeODataString(f.ParentID))
	}
	return b.String()
}

func sortItems(items []domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OrderIndex < items[j].OrderIndex
	})
}

// ListItems retrieves the caller's items matching the filter, ordered
// by order index ascending.
func (s *Storage) ListItems(ctx context.Context, userID string, f ItemFilter) ([]domain.Item, error) {
	filter := buildItemFilter(userID, f)
	pager := s.items.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.Item{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent itemEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			items = append(items, itemFromEntity(ent))
		}
	}
	sortItems(items)
	return items, nil
}

// GetItem retrieves one item, or ErrNotFound.
func (s *Storage) GetItem(ctx context.Context, userID, id string) (domain.Item, error) {
	ent, err := s.items.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, err
	}
	var raw itemEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return domain.Item{}, err
	}
	return itemFromEntity(raw), nil
}

// nextOrder returns an order index past every existing one, so serial
// creates sort after all prior rows.
func nextOrder(existing []int) int {
	next := 0
	for _, idx := range existing {
		if idx+1 > next {
			next = idx + 1
		}
	}
	return next
}

// nextOrderIndex scans the partition for the current maximum order
// index. Read-then-write: two concurrent creates can collide, which is
// acceptable because ordering is advisory.
func (s *Storage) nextOrderIndex(ctx context.Context, userID string) (int, error) {
	filter := "PartitionKey eq '" + escapeODataString(userID) + "'"
	sel := "OrderIndex"
	pager := s.items.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	var existing []int
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, e := range resp.Entities {
			var ent struct {
				OrderIndex int `json:"OrderIndex"`
			}
			if err := json.Unmarshal(e, &ent); err != nil {
				return 0, err
			}
			existing = append(existing, ent.OrderIndex)
		}
	}
	return nextOrder(existing), nil
}

// newItemRow fills the server-assigned fields of a new item: id,
// owner, order index, creation time, and the draft/workspace defaults
// for an absent status or origin.
func newItemRow(userID string, it domain.Item, orderIndex int) domain.Item {
	it.ID = uuid.NewString()
	it.UserID = userID
	it.OrderIndex = orderIndex
	it.CreatedAt = time.Now().UTC()
	if it.Status == "" {
		it.Status = domain.StatusDraft
	}
	if it.Origin == "" {
		it.Origin = domain.OriginWorkspace
	}
	return it
}

// InsertItem persists a new item for the user, assigning id, creation
// time and the next order index.
func (s *Storage) InsertItem(ctx context.Context, userID string, it domain.Item) (domain.Item, error) {
	if err := domain.ValidateText(it.Text); err != nil {
		return domain.Item{}, err
	}
	next, err := s.nextOrderIndex(ctx, userID)
	if err != nil {
		return domain.Item{}, err
	}
	it = newItemRow(userID, it, next)
	payload, err := json.Marshal(entityFromItem(it))
	if err != nil {
		return domain.Item{}, err
	}
	if _, err := s.items.AddEntity(ctx, payload, nil); err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

type itemUpdateEntity struct {
	aztables.Entity
	Text             *string `json:"Text,omitempty"`
	OrderIndex       *int    `json:"OrderIndex,omitempty"`
	ParentID         *string `json:"ParentID,omitempty"`
	Status           *string `json:"Status,omitempty"`
	ScheduledFor     *string `json:"ScheduledFor,omitempty"`
	EstimatedMinutes *int    `json:"EstimatedMinutes,omitempty"`
}

// UpdateItem merges the partial field set into the stored row and
// returns the updated item.
func (s *Storage) UpdateItem(ctx context.Context, userID, id string, upd domain.ItemUpdate) (domain.Item, error) {
	if upd.Text != nil {
		if err := domain.ValidateText(*upd.Text); err != nil {
			return domain.Item{}, err
		}
	}
	ent := itemUpdateEntity{
		Entity:           aztables.Entity{PartitionKey: userID, RowKey: id},
		Text:             upd.Text,
		OrderIndex:       upd.OrderIndex,
		ParentID:         upd.ParentID,
		ScheduledFor:     upd.ScheduledFor,
		EstimatedMinutes: upd.EstimatedMinutes,
	}
	if upd.Status != nil {
		st := string(*upd.Status)
		ent.Status = &st
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Item{}, err
	}
	et := azcore.ETagAny
	_, err = s.items.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		if isNotFound(err) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, err
	}
	return s.GetItem(ctx, userID, id)
}

// DeleteItem removes one item. Children are left in place; callers
// wanting a cascade delete them explicitly.
func (s *Storage) DeleteItem(ctx context.Context, userID, id string) error {
	_, err := s.items.DeleteEntity(ctx, userID, id, nil)
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// DeleteAllItems clears the caller's whole workspace, one delete per
// row. Table storage offers no cross-row transaction here.
func (s *Storage) DeleteAllItems(ctx context.Context, userID string) error {
	items, err := s.ListItems(ctx, userID, ItemFilter{})
	if err != nil {
		return err
	}
	for _, it := range items {
		if _, err := s.items.DeleteEntity(ctx, userID, it.ID, nil); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// EnqueueEvents pushes lifecycle events onto the digest queue.
func (s *Storage) EnqueueEvents(ctx context.Context, userID string, events []domain.ItemEvent) error {
	if len(events) == 0 {
		return nil
	}
	env := domain.ItemEventEnvelope{UserID: userID, Events: events}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.digestQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
