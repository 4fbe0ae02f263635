package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"orbit-api/domain"
)

type projectEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	CreatedAt   string `json:"CreatedAt"`
}

func projectFromEntity(ent projectEntity) domain.Project {
	created, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	return domain.Project{
		ID:          ent.RowKey,
		Name:        ent.Name,
		Description: ent.Description,
		CreatedAt:   created,
	}
}

// ListProjects retrieves the caller's projects, newest first.
func (s *Storage) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	filter := "PartitionKey eq '" + escapeODataString(userID) + "'"
	pager := s.projects.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent projectEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			projects = append(projects, projectFromEntity(ent))
		}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

// InsertProject persists a new project.
func (s *Storage) InsertProject(ctx context.Context, userID, name, description string) (domain.Project, error) {
	if err := domain.ValidateText(name); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	ent := projectEntity{
		Entity:      aztables.Entity{PartitionKey: userID, RowKey: p.ID},
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := s.projects.AddEntity(ctx, payload, nil); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type projectUpdateEntity struct {
	aztables.Entity
	Name        *string `json:"Name,omitempty"`
	Description *string `json:"Description,omitempty"`
}

// ProjectUpdate carries a partial project field set.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateProject merges the partial field set into the stored project.
func (s *Storage) UpdateProject(ctx context.Context, userID, id string, upd ProjectUpdate) error {
	if upd.Name != nil {
		if err := domain.ValidateText(*upd.Name); err != nil {
			return err
		}
	}
	ent := projectUpdateEntity{
		Entity:      aztables.Entity{PartitionKey: userID, RowKey: id},
		Name:        upd.Name,
		Description: upd.Description,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.projects.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// DeleteProject removes the project row. Items tagged with the project
// keep their origin and source id, matching the no-cascade policy for
// item parents.
func (s *Storage) DeleteProject(ctx context.Context, userID, id string) error {
	_, err := s.projects.DeleteEntity(ctx, userID, id, nil)
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

type settingsEntity struct {
	aztables.Entity
	// SectionOrder and Hidden are JSON-encoded blobs; table columns
	// hold scalars only.
	SectionOrder string `json:"SectionOrder"`
	Hidden       string `json:"Hidden"`
	ShowDone     bool   `json:"ShowDone"`
}

func decodeSettingsEntity(data []byte) (domain.Settings, error) {
	var raw settingsEntity
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Settings{}, err
	}
	out := domain.Settings{ShowDone: raw.ShowDone}
	if raw.SectionOrder != "" {
		if err := json.Unmarshal([]byte(raw.SectionOrder), &out.SectionOrder); err != nil {
			return domain.Settings{}, err
		}
	}
	if raw.Hidden != "" {
		if err := json.Unmarshal([]byte(raw.Hidden), &out.Hidden); err != nil {
			return domain.Settings{}, err
		}
	}
	return out, nil
}

// FetchSettings retrieves the user's board layout, or defaults when
// none has been saved.
func (s *Storage) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	ent, err := s.settings.GetEntity(ctx, userID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Settings{}, nil
		}
		return domain.Settings{}, err
	}
	return decodeSettingsEntity(ent.Value)
}

// SaveSettings replaces the user's board layout.
func (s *Storage) SaveSettings(ctx context.Context, userID string, settings domain.Settings) error {
	order, err := json.Marshal(settings.SectionOrder)
	if err != nil {
		return err
	}
	hidden, err := json.Marshal(settings.Hidden)
	if err != nil {
		return err
	}
	ent := settingsEntity{
		Entity:       aztables.Entity{PartitionKey: userID, RowKey: userID},
		SectionOrder: string(order),
		Hidden:       string(hidden),
		ShowDone:     settings.ShowDone,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.settings.UpsertEntity(ctx, payload, nil)
	return err
}
