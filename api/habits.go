package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"orbit-api/domain"
	"orbit-api/storage"
)

func getHabits(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		habits, err := store.ListHabits(ctx, userID, c.QueryParam("all") == "1")
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, habits)
	}
}

type createHabitRequest struct {
	Name string `json:"name"`
}

func postHabit(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var req createHabitRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		habit, err := store.InsertHabit(ctx, userID, req.Name)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusCreated, habit)
	}
}

func putHabit(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var upd storage.HabitUpdate
		if err := decodeBody(c, &upd); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if err := store.UpdateHabit(ctx, userID, c.Param("id"), upd); err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusOK, nil)
	}
}

func deleteHabit(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		// Soft delete by default so check history stays queryable.
		if c.QueryParam("hard") == "true" {
			err = store.DeleteHabit(ctx, userID, id)
		} else {
			err = store.DeactivateHabit(ctx, userID, id)
		}
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusOK, nil)
	}
}

func getChecks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		start, end := c.QueryParam("start"), c.QueryParam("end")
		if !validDay(start) || !validDay(end) {
			return respondError(c, http.StatusBadRequest, "start and end must be YYYY-MM-DD dates")
		}
		checks, err := store.ListChecks(ctx, userID, start, end)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, checks)
	}
}

type toggleCheckRequest struct {
	Date string `json:"date"`
}

func postCheck(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var req toggleCheckRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if req.Date == "" {
			req.Date = domain.DayKey(time.Now().UTC())
		}
		if !validDay(req.Date) {
			return respondError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		check, err := store.ToggleCheck(ctx, userID, c.Param("id"), req.Date)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, check)
	}
}

func getHabitStats(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		habits, err := store.ListHabits(ctx, userID, false)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		today := time.Now().UTC()
		start := domain.DayKey(today.AddDate(0, 0, -365))
		checks, err := store.ListChecks(ctx, userID, start, domain.DayKey(today))
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		stats := domain.ComputeHabitStats(habits, today, domain.LookupFromChecks(checks))
		return respond(c, http.StatusOK, stats)
	}
}

func validDay(day string) bool {
	_, err := time.Parse(domain.DayFormat, day)
	return err == nil
}
