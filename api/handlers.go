package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, sink EventSink, auth Authenticator, deduper Deduper, organizer Organizer, logger *log.Logger) {
	e.GET("/api/workspace", getItems(store, auth, logger))
	e.POST("/api/workspace", postItem(store, auth, deduper))
	e.PUT("/api/workspace/:id", putItem(store, auth))
	e.DELETE("/api/workspace/:id", deleteItem(store, auth))
	e.DELETE("/api/workspace", clearItems(store, auth))

	e.GET("/api/habits", getHabits(store, auth))
	e.POST("/api/habits", postHabit(store, auth))
	e.PUT("/api/habits/:id", putHabit(store, auth))
	e.DELETE("/api/habits/:id", deleteHabit(store, auth))
	e.GET("/api/habits/checks", getChecks(store, auth))
	e.POST("/api/habits/:id/checks", postCheck(store, auth))
	e.GET("/api/habits/stats", getHabitStats(store, auth))

	e.GET("/api/projects", getProjects(store, auth))
	e.POST("/api/projects", postProject(store, auth))
	e.PUT("/api/projects/:id", putProject(store, auth))
	e.DELETE("/api/projects/:id", deleteProject(store, auth))

	e.GET("/api/settings", getSettings(store, auth))
	e.PUT("/api/settings", putSettings(store, auth))

	e.POST("/api/capture/organize", postOrganize(organizer, auth))

	e.GET("/healthz", healthz())

	initEventEmitter(sink, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}
