package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"orbit-api/domain"
	"orbit-api/storage"
)

const requestBodyMaxSize = 1 << 20

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func getItems(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newItemRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = respondError(c, http.StatusUnauthorized, authErr.Error())
			return err
		}

		filter := storage.ItemFilter{
			Status:     domain.ItemStatus(c.QueryParam("status")),
			Origin:     domain.ItemOrigin(c.QueryParam("origin")),
			SourceType: c.QueryParam("source_type"),
			SourceID:   c.QueryParam("source_id"),
			ParentID:   c.QueryParam("parent_id"),
		}
		tree := c.QueryParam("tree") == "1"
		metrics.SetTreeRequested(tree)

		fetchStart := time.Now()
		items, fetchErr := store.ListItems(ctx, userID, filter)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = respondError(c, http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetItemsReturned(len(items))

		if tree {
			items = domain.BuildHierarchy(items)
		}
		encodeStart := time.Now()
		err = respond(c, http.StatusOK, items)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createItemRequest struct {
	Text             string            `json:"text"`
	ParentID         string            `json:"parent_id,omitempty"`
	Status           domain.ItemStatus `json:"status,omitempty"`
	Origin           domain.ItemOrigin `json:"origin,omitempty"`
	ScheduledFor     string            `json:"scheduled_for,omitempty"`
	AIGenerated      bool              `json:"ai_generated,omitempty"`
	IsBreakdown      bool              `json:"is_breakdown,omitempty"`
	EstimatedMinutes int               `json:"estimated_minutes,omitempty"`
	SourceType       string            `json:"source_type,omitempty"`
	SourceID         string            `json:"source_id,omitempty"`
}

func postItem(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}

		var req createItemRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if err := domain.ValidateText(req.Text); err != nil {
			return respondError(c, http.StatusBadRequest, err.Error())
		}

		idemKey := c.Request().Header.Get("X-Idempotency-Key")
		if idemKey != "" && deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, idemKey)
			if dedupeErr != nil {
				// Redis being down must not block writes.
				c.Logger().Errorf("deduper add failed: %v", dedupeErr)
			} else if !added {
				return respondError(c, http.StatusConflict, "duplicate create: "+idemKey)
			}
		}

		created, err := store.InsertItem(ctx, userID, domain.Item{
			Text:             req.Text,
			ParentID:         req.ParentID,
			Status:           req.Status,
			Origin:           req.Origin,
			ScheduledFor:     req.ScheduledFor,
			AIGenerated:      req.AIGenerated,
			IsBreakdown:      req.IsBreakdown,
			EstimatedMinutes: req.EstimatedMinutes,
			SourceType:       req.SourceType,
			SourceID:         req.SourceID,
		})
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}

		emitItemEvents(userID, domain.ItemEvent{Type: domain.ItemCreated, ItemID: created.ID, Origin: created.Origin})
		return respond(c, http.StatusCreated, created)
	}
}

func putItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}

		var upd domain.ItemUpdate
		if err := decodeBody(c, &upd); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}

		updated, err := store.UpdateItem(ctx, userID, c.Param("id"), upd)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		if upd.ScheduledFor != nil && *upd.ScheduledFor != "" {
			emitItemEvents(userID, domain.ItemEvent{Type: domain.ItemScheduled, ItemID: updated.ID, Origin: updated.Origin})
		}
		return respond(c, http.StatusOK, updated)
	}
}

func deleteItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		// Default policy leaves children in place with their dangling
		// parent reference. Cascade is an explicit opt-in.
		if c.QueryParam("cascade") == "true" {
			children, err := store.ListItems(ctx, userID, storage.ItemFilter{ParentID: id})
			if err != nil {
				c.Logger().Error(err)
				return respondError(c, http.StatusInternalServerError, err.Error())
			}
			for _, child := range children {
				if err := store.DeleteItem(ctx, userID, child.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
					c.Logger().Error(err)
					return respondError(c, http.StatusInternalServerError, err.Error())
				}
				emitItemEvents(userID, domain.ItemEvent{Type: domain.ItemDeleted, ItemID: child.ID, Origin: child.Origin})
			}
		}

		if err := store.DeleteItem(ctx, userID, id); err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		emitItemEvents(userID, domain.ItemEvent{Type: domain.ItemDeleted, ItemID: id})
		return respond(c, http.StatusOK, nil)
	}
}

func clearItems(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		if err := store.DeleteAllItems(ctx, userID); err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, nil)
	}
}
