package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/version"
)

// PingHandler serves /ping, HEAD /health and /status.
type PingHandler struct {
	coordinator *settlement.Coordinator
	logger      *slog.Logger
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Owner   string `json:"owner"`
	Paused  bool   `json:"paused"`
	Version string `json:"version"`
}

func NewPingHandler(log *slog.Logger, coordinator *settlement.Coordinator) *PingHandler {
	return &PingHandler{
		coordinator: coordinator,
		logger:      log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
	e.GET("/status", h.Status)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Health fails when the store cannot be reached.
func (h *PingHandler) Health(c echo.Context) error {
	if _, err := h.coordinator.Paused(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (h *PingHandler) Status(c echo.Context) error {
	paused, err := h.coordinator.Paused(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Owner:   h.coordinator.Owner(),
		Paused:  paused,
		Version: version.GetInfo(),
	})
}
