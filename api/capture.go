package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"orbit-api/domain"
)

type organizeRequest struct {
	Text string `json:"text"`
}

// postOrganize forwards captured note text to the completion service
// and returns the structured preview. The provider itself is opaque.
func postOrganize(organizer Organizer, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return respondError(c, http.StatusUnauthorized, err.Error())
		}

		if organizer == nil {
			return respondError(c, http.StatusServiceUnavailable, "capture assistant not configured")
		}

		var req organizeRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, http.StatusBadRequest, "invalid body")
		}
		if err := domain.ValidateText(req.Text); err != nil {
			return respondError(c, http.StatusBadRequest, err.Error())
		}

		preview, err := organizer.Organize(ctx, req.Text)
		if err != nil {
			c.Logger().Error(err)
			return respondError(c, http.StatusBadGateway, "completion service failed: "+err.Error())
		}
		return respond(c, http.StatusOK, preview)
	}
}
