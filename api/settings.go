package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"orbit-api/domain"
)

func getSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		settings, err := store.FetchSettings(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, settings)
	}
}

func putSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}
		var settings domain.Settings
		if err := decodeBody(c, &settings); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if err := store.SaveSettings(ctx, userID, settings); err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusInternalServerError, err.Error())
		}
		return respond(c, http.StatusOK, settings)
	}
}
