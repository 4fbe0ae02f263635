package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"orbit-api/domain"
	"orbit-api/storage"
)

type mockStore struct {
	mu         sync.Mutex
	items      []domain.Item
	habits     []domain.Habit
	checks     []domain.HabitCheck
	projects   []domain.Project
	settings   domain.Settings
	listErr    error
	insertErr  error
	deletedIDs []string
	cleared    bool
	lastFilter storage.ItemFilter
	lastAll    bool
	lastStart  string
	lastEnd    string
	lastToggle [2]string
	lastHard   []string
	lastSoft   []string
	nextID     int
}

func (m *mockStore) ListItems(_ context.Context, _ string, f storage.ItemFilter) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	if m.listErr != nil {
		return nil, m.listErr
	}
	if f.ParentID != "" {
		var out []domain.Item
		for _, it := range m.items {
			if it.ParentID == f.ParentID {
				out = append(out, it)
			}
		}
		return out, nil
	}
	out := make([]domain.Item, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *mockStore) GetItem(_ context.Context, _ string, id string) (domain.Item, error) {
	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.Item{}, storage.ErrNotFound
}

func (m *mockStore) InsertItem(_ context.Context, _ string, it domain.Item) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return domain.Item{}, m.insertErr
	}
	m.nextID++
	it.ID = fmt.Sprintf("item-%d", m.nextID)
	m.items = append(m.items, it)
	return it, nil
}

func (m *mockStore) UpdateItem(_ context.Context, _ string, id string, upd domain.ItemUpdate) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i] = upd.Apply(m.items[i])
			return m.items[i], nil
		}
	}
	return domain.Item{}, storage.ErrNotFound
}

func (m *mockStore) DeleteItem(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedIDs = append(m.deletedIDs, id)
	for i := range m.items {
		if m.items[i].ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *mockStore) DeleteAllItems(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	m.items = nil
	return nil
}

func (m *mockStore) ListHabits(_ context.Context, _ string, includeInactive bool) ([]domain.Habit, error) {
	m.lastAll = includeInactive
	if includeInactive {
		return m.habits, nil
	}
	var out []domain.Habit
	for _, h := range m.habits {
		if h.Active {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockStore) InsertHabit(_ context.Context, _ string, name string) (domain.Habit, error) {
	h := domain.Habit{ID: "habit-1", Name: name, Active: true}
	m.habits = append(m.habits, h)
	return h, nil
}

func (m *mockStore) UpdateHabit(context.Context, string, string, storage.HabitUpdate) error {
	return nil
}

func (m *mockStore) DeactivateHabit(_ context.Context, _ string, id string) error {
	m.lastSoft = append(m.lastSoft, id)
	return nil
}

func (m *mockStore) DeleteHabit(_ context.Context, _ string, id string) error {
	m.lastHard = append(m.lastHard, id)
	return nil
}

func (m *mockStore) ListChecks(_ context.Context, _ string, start, end string) ([]domain.HabitCheck, error) {
	m.lastStart, m.lastEnd = start, end
	return m.checks, nil
}

func (m *mockStore) ToggleCheck(_ context.Context, _ string, habitID, date string) (domain.HabitCheck, error) {
	m.lastToggle = [2]string{habitID, date}
	return domain.HabitCheck{HabitID: habitID, Date: date, Checked: true}, nil
}

func (m *mockStore) ListProjects(context.Context, string) ([]domain.Project, error) {
	return m.projects, nil
}

func (m *mockStore) InsertProject(_ context.Context, _ string, name, description string) (domain.Project, error) {
	p := domain.Project{ID: "project-1", Name: name, Description: description}
	m.projects = append(m.projects, p)
	return p, nil
}

func (m *mockStore) UpdateProject(context.Context, string, string, storage.ProjectUpdate) error {
	return nil
}

func (m *mockStore) DeleteProject(context.Context, string, string) error { return nil }

func (m *mockStore) FetchSettings(context.Context, string) (domain.Settings, error) {
	return m.settings, nil
}

func (m *mockStore) SaveSettings(_ context.Context, _ string, s domain.Settings) error {
	m.settings = s
	return nil
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type failAuth struct{}

func (failAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errMissingAuthorization
}

type fakeDeduper struct {
	seen    map[string]bool
	removed []string
	err     error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (f *fakeDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	k := userID + ":" + key
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

func (f *fakeDeduper) Remove(_ context.Context, userID, key string) error {
	k := userID + ":" + key
	delete(f.seen, k)
	f.removed = append(f.removed, key)
	return nil
}

func newTestContext(method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer h.p.s")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env struct {
		Success bool                   `json:"success"`
		Data    sonic.NoCopyRawMessage `json:"data"`
		Error   string                 `json:"error"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope json: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := sonic.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("invalid data json: %v", err)
		}
	}
	return envelope{Success: env.Success, Error: env.Error}
}

func TestGetItems(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &mockStore{items: []domain.Item{
		{ID: "a", Text: "one", Status: domain.StatusReady},
		{ID: "b", Text: "two", Status: domain.StatusDraft},
	}}
	c, rec := newTestContext(http.MethodGet, "/api/workspace?status=ready", "")

	if err := getItems(store, mockAuth{}, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if store.lastFilter.Status != domain.StatusReady {
		t.Fatalf("status filter not forwarded: %+v", store.lastFilter)
	}
	var items []domain.Item
	env := decodeEnvelope(t, rec, &items)
	if !env.Success {
		t.Fatalf("expected success envelope: %+v", env)
	}
	if len(items) != 2 || items[0].ID != "a" {
		t.Fatalf("unexpected items: %#v", items)
	}
}

func TestGetItemsTree(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &mockStore{items: []domain.Item{
		{ID: "root", Text: "parent"},
		{ID: "child", Text: "sub", ParentID: "root"},
	}}
	c, rec := newTestContext(http.MethodGet, "/api/workspace?tree=1", "")

	if err := getItems(store, mockAuth{}, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var items []domain.Item
	decodeEnvelope(t, rec, &items)
	if len(items) != 1 {
		t.Fatalf("expected 1 root, got %d", len(items))
	}
	if len(items[0].Subtasks) != 1 || items[0].Subtasks[0].ID != "child" {
		t.Fatalf("subtask not nested: %#v", items[0])
	}
}

func TestGetItemsUnauthorized(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, rec := newTestContext(http.MethodGet, "/api/workspace", "")

	if err := getItems(&mockStore{}, failAuth{}, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec, nil)
	if env.Success || env.Error == "" {
		t.Fatalf("expected error envelope: %+v", env)
	}
}

func TestPostItem(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"write report","origin":"project"}`)

	if err := postItem(store, mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Item
	decodeEnvelope(t, rec, &created)
	if created.ID == "" || created.Text != "write report" || created.Origin != domain.OriginProject {
		t.Fatalf("unexpected created item: %#v", created)
	}
}

func TestPostItemRejectsWhitespaceText(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"   "}`)

	if err := postItem(store, mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(store.items) != 0 {
		t.Fatalf("store written despite invalid text: %#v", store.items)
	}
}

func TestPostItemRejectsUnknownFields(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"x","bogus":true}`)

	if err := postItem(store, mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestPostItemDuplicateIdempotencyKey(t *testing.T) {
	store := &mockStore{}
	deduper := newFakeDeduper()

	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"once"}`)
	c.Request().Header.Set("X-Idempotency-Key", "tmp-abc")
	if err := postItem(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create status %d", rec.Code)
	}

	c2, rec2 := newTestContext(http.MethodPost, "/api/workspace", `{"text":"once"}`)
	c2.Request().Header.Set("X-Idempotency-Key", "tmp-abc")
	if err := postItem(store, mockAuth{}, deduper)(c2); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec2.Code)
	}
	if len(store.items) != 1 {
		t.Fatalf("duplicate create reached the store: %#v", store.items)
	}
}

func TestPostItemStoreFailureReleasesIdempotencyKey(t *testing.T) {
	store := &mockStore{insertErr: errors.New("table unavailable")}
	deduper := newFakeDeduper()

	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"retry me"}`)
	c.Request().Header.Set("X-Idempotency-Key", "tmp-abc")
	if err := postItem(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if len(deduper.removed) != 1 || deduper.removed[0] != "tmp-abc" {
		t.Fatalf("key not released after store failure: %v", deduper.removed)
	}
}

func TestPostItemDeduperOutageFailsOpen(t *testing.T) {
	store := &mockStore{}
	deduper := newFakeDeduper()
	deduper.err = errors.New("redis down")

	c, rec := newTestContext(http.MethodPost, "/api/workspace", `{"text":"still lands"}`)
	c.Request().Header.Set("X-Idempotency-Key", "tmp-abc")
	if err := postItem(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if len(store.items) != 1 {
		t.Fatalf("create blocked by deduper outage: %#v", store.items)
	}
}

func TestPutItemMergesFields(t *testing.T) {
	store := &mockStore{items: []domain.Item{{ID: "a", Text: "old", Status: domain.StatusDraft}}}
	c, rec := newTestContext(http.MethodPut, "/api/workspace/a", `{"status":"ready"}`)
	c.SetParamNames("id")
	c.SetParamValues("a")

	if err := putItem(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var updated domain.Item
	decodeEnvelope(t, rec, &updated)
	if updated.Status != domain.StatusReady || updated.Text != "old" {
		t.Fatalf("merge wrong: %#v", updated)
	}
}

func TestPutItemNotFound(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPut, "/api/workspace/missing", `{"text":"x"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := putItem(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestDeleteItemKeepsChildrenByDefault(t *testing.T) {
	store := &mockStore{items: []domain.Item{
		{ID: "root", Text: "parent"},
		{ID: "child", Text: "sub", ParentID: "root"},
	}}
	c, rec := newTestContext(http.MethodDelete, "/api/workspace/root", "")
	c.SetParamNames("id")
	c.SetParamValues("root")

	if err := deleteItem(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.deletedIDs) != 1 || store.deletedIDs[0] != "root" {
		t.Fatalf("unexpected deletions: %v", store.deletedIDs)
	}
	// The orphan keeps its dangling parent reference.
	if len(store.items) != 1 || store.items[0].ParentID != "root" {
		t.Fatalf("child not preserved: %#v", store.items)
	}
}

func TestDeleteItemCascade(t *testing.T) {
	store := &mockStore{items: []domain.Item{
		{ID: "root", Text: "parent"},
		{ID: "c1", ParentID: "root"},
		{ID: "c2", ParentID: "root"},
		{ID: "other"},
	}}
	c, rec := newTestContext(http.MethodDelete, "/api/workspace/root?cascade=true", "")
	c.SetParamNames("id")
	c.SetParamValues("root")

	if err := deleteItem(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.items) != 1 || store.items[0].ID != "other" {
		t.Fatalf("cascade left wrong rows: %#v", store.items)
	}
}

func TestClearItems(t *testing.T) {
	store := &mockStore{items: []domain.Item{{ID: "a"}, {ID: "b"}}}
	c, rec := newTestContext(http.MethodDelete, "/api/workspace", "")

	if err := clearItems(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !store.cleared || len(store.items) != 0 {
		t.Fatalf("workspace not cleared: %#v", store.items)
	}
}
