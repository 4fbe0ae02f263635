package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"orbit-api/storage"
)

func getProjects(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		projects, err := store.ListProjects(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, projects)
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func postProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var req createProjectRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		project, err := store.InsertProject(ctx, userID, req.Name, req.Description)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusCreated, project)
	}
}

func putProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var upd storage.ProjectUpdate
		if err := decodeBody(c, &upd); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if err := store.UpdateProject(ctx, userID, c.Param("id"), upd); err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusOK, nil)
	}
}

func deleteProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		if err := store.DeleteProject(ctx, userID, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return respondError(c, storeErrorStatus(err), err.Error())
		}
		return respond(c, http.StatusOK, nil)
	}
}
