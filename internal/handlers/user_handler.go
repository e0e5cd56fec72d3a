package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/homegrid/backend/internal/middlewares"
	"github.com/homegrid/backend/internal/models"
	"github.com/homegrid/backend/internal/repositories"
	"github.com/homegrid/backend/internal/services"
	"go.uber.org/zap"
)

// UserService is the interface that wraps methods for user profile and administration logic
type UserService interface {
	// Method Get retrieves a user by id.
	//
	// Returns repositories.ErrUserNotFound when no such user exists.
	Get(ctx context.Context, userID int) (*models.User, error)
	// Method List retrieves all users.
	List(ctx context.Context) ([]*models.User, error)
	// Method UpdateRole changes a user's role and invalidates their cached identity.
	UpdateRole(ctx context.Context, userID int, role models.Role) error
	// Method ChangePassword verifies the current password and stores a new hash.
	ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) error
}

// UserHandler handles user profile and administration HTTP requests
type UserHandler struct {
	BaseHandler
	userService UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: BaseHandler{Logger: logger},
		userService: userService,
	}
}

// RegisterRoutes registers all user routes behind the guard. The full listing
// additionally sits behind a config flag and stays 404 in production.
func (h *UserHandler) RegisterRoutes(r chi.Router, guard *middlewares.Guard, listingEnabled bool) {
	r.Group(func(r chi.Router) {
		r.Use(guard.Allowed)
		r.Get("/me", h.Me)
		r.Put("/me/password", h.ChangePassword)
		r.Get("/users/{id}", h.GetUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(middlewares.EnabledMiddleware(listingEnabled))
		r.Use(guard.Role(models.RoleAdmin))
		r.Get("/users", h.ListUsers)
	})

	r.With(guard.Role(models.RoleAdmin)).Put("/users/{id}/role", h.UpdateRole)
}

// Me handles GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewares.CurrentUser(r.Context())
	if !ok {
		h.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.RespondJSON(w, http.StatusOK, user)
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			h.RespondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.Logger.Error("failed to get user", zap.Int("user_id", userID), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.RespondJSON(w, http.StatusOK, user)
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		h.Logger.Error("failed to list users", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]any{"users": users})
}

// UpdateRole handles PUT /users/{id}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Role models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.userService.UpdateRole(r.Context(), userID, req.Role); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			h.RespondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.Logger.Error("failed to update role", zap.Int("user_id", userID), zap.Error(err))
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

// ChangePassword handles PUT /me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewares.CurrentUser(r.Context())
	if !ok {
		h.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrWrongPassword):
			h.RespondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, services.ErrWeakPassword):
			h.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			h.Logger.Error("failed to change password", zap.Int("user_id", user.ID), zap.Error(err))
			h.RespondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
