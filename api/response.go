package api

import "github.com/labstack/echo/v4"

// envelope is the uniform response shape: {success, data?, error?}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func respondError(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Error: msg})
}
