package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/storage"
)

// AdminHandler serves owner-only controls and the token allow-list.
type AdminHandler struct {
	coordinator *settlement.Coordinator
	logger      *slog.Logger
}

// TokenListResponse is one page of allow-listed tokens.
type TokenListResponse struct {
	Items []storage.Token `json:"items"`
}

func NewAdminHandler(log *slog.Logger, coordinator *settlement.Coordinator) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		logger:      log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	g := e.Group("/admin")
	g.POST("/pause", h.Pause)
	g.POST("/unpause", h.Unpause)
	g.PUT("/tokens/:id", h.PutToken)
	g.DELETE("/tokens/:id", h.DeleteToken)

	e.GET("/tokens", h.ListTokens)
	e.GET("/tokens/:id", h.GetToken)
}

func (h *AdminHandler) Pause(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	if err := h.coordinator.Pause(c.Request().Context(), caller); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"paused": true})
}

func (h *AdminHandler) Unpause(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	if err := h.coordinator.Unpause(c.Request().Context(), caller); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"paused": false})
}

// PutToken registers or replaces the custodian named by :id.
func (h *AdminHandler) PutToken(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	var info storage.TokenInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token := storage.Token{ID: c.Param("id"), Info: info}
	if err := h.coordinator.RegisterToken(c.Request().Context(), caller, token); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, token)
}

func (h *AdminHandler) DeleteToken(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	if err := h.coordinator.RemoveToken(c.Request().Context(), caller, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ListTokens(c echo.Context) error {
	from, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	tokens, err := h.coordinator.Tokens(c.Request().Context(), from, limit)
	if err != nil {
		return httpError(err)
	}
	if tokens == nil {
		tokens = []storage.Token{}
	}
	return c.JSON(http.StatusOK, TokenListResponse{Items: tokens})
}

func (h *AdminHandler) GetToken(c echo.Context) error {
	id := c.Param("id")
	info, ok, err := h.coordinator.Token(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(storage.ErrTokenNotFound)
	}
	return c.JSON(http.StatusOK, storage.Token{ID: id, Info: info})
}
