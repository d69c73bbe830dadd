// Package server provides HTTP handlers and server setup for the user API.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"userapi/internal/core"
	"userapi/internal/users"
)

// Handler holds the HTTP handlers
type Handler struct {
	users  users.Store
	logger *slog.Logger
}

// NewHandler creates a new handler with the given store
func NewHandler(store users.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:  store,
		logger: logger,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListUsers handles GET /api/users
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Success      200  {array}   core.User
// @Failure      500  {object}  core.APIError
// @Router       /api/users [get]
func (h *Handler) ListUsers(c echo.Context) error {
	list, err := h.users.List(c.Request().Context())
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetUser handles GET /api/users/:id
//
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  core.User
// @Failure      404  {object}  core.APIError
// @Router       /api/users/{id} [get]
func (h *Handler) GetUser(c echo.Context) error {
	// Non-numeric ids never match a user, so they are reported as missing.
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		return h.handleError(c, core.NewNotFoundError("user not found"))
	}

	u, err := h.users.Get(c.Request().Context(), uint(id))
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// CreateUser handles POST /api/users
//
// @Summary      Create a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user  body      core.CreateUserRequest  true  "User to create"
// @Success      201   {object}  core.User
// @Header       201   {string}  Location  "/api/users/{id}"
// @Failure      400   {object}  core.APIError
// @Router       /api/users [post]
func (h *Handler) CreateUser(c echo.Context) error {
	var req core.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return h.handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}

	u := &core.User{Name: req.Name, Email: req.Email}
	if err := h.users.Create(c.Request().Context(), u); err != nil {
		return h.handleError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("%s/%d", UsersPath, u.ID))
	return c.JSON(http.StatusCreated, u)
}

// handleError converts errors to appropriate HTTP responses
func (h *Handler) handleError(c echo.Context, err error) error {
	if errors.Is(err, users.ErrNotFound) {
		err = core.NewNotFoundError(err.Error())
	}

	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		apiErr = core.NewInternalError(err)
	}

	if apiErr.HTTPStatusCode() >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"error", err,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
	}

	return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
}
