package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/homegrid/backend/internal/middlewares"
	"github.com/homegrid/backend/internal/models"
	"github.com/homegrid/backend/internal/services"
	"go.uber.org/zap"
)

// AuthService is the interface that wraps methods for authentication business logic.
type AuthService interface {
	// Method Authenticate validates credentials and account state for one
	// login attempt.
	//
	// Denials come back inside the LoginResult; an error means the store or
	// cache failed.
	Authenticate(ctx context.Context, email, password string) (*services.LoginResult, error)
	// Method Signup creates a new user account with the default role.
	//
	// Returns ErrEmailNotAllowed, ErrInvalidEmail, ErrWeakPassword or
	// ErrEmailExists for the corresponding rejections.
	Signup(ctx context.Context, req *models.SignupRequest) (*models.User, error)
}

// SessionStore is the interface that wraps the session lifecycle used at login and logout
type SessionStore interface {
	Create(ctx context.Context, userID int) (string, error)
	Destroy(ctx context.Context, token string) error
	TTL() time.Duration
}

// IdentityInvalidator evicts a user's cached identity record
type IdentityInvalidator interface {
	Invalidate(ctx context.Context, userID int) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	BaseHandler
	authService AuthService
	sessions    SessionStore
	identity    IdentityInvalidator
	cookieName  string
	secure      bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService AuthService,
	sessions SessionStore,
	identity IdentityInvalidator,
	cookieName string,
	secure bool,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		BaseHandler: BaseHandler{Logger: logger},
		authService: authService,
		sessions:    sessions,
		identity:    identity,
		cookieName:  cookieName,
		secure:      secure,
	}
}

// RegisterRoutes registers the public auth routes; logout is registered
// separately because it requires an authenticated session
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/signup", h.Signup)
	})
}

// RegisterProtectedRoutes registers the auth routes behind the given guard
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router, guard *middlewares.Guard) {
	r.With(guard.Authenticated).Post("/auth/logout", h.Logout)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.authService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.Logger.Error("login failed on infrastructure error", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch result.Outcome {
	case services.LoginSuccess:
		token, err := h.sessions.Create(r.Context(), result.User.ID)
		if err != nil {
			h.Logger.Error("failed to create session", zap.Error(err))
			h.RespondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		h.setSessionCookie(w, token)
		h.RespondJSON(w, http.StatusOK, map[string]any{
			"message": "logged in",
			"user":    result.User,
		})

	case services.LoginLockedOut:
		h.RespondJSON(w, http.StatusLocked, map[string]any{
			"error":               "account temporarily locked due to repeated failed logins",
			"retry_after_minutes": result.RetryAfterMinutes,
		})

	case services.LoginNotAuthorized:
		h.RespondError(w, http.StatusForbidden, "access denied: you are not authorized to use this application")

	default:
		resp := map[string]any{"error": "invalid email or password"}
		if result.AttemptsRemaining > 0 {
			resp["attempts_remaining"] = result.AttemptsRemaining
		}
		h.RespondJSON(w, http.StatusUnauthorized, resp)
	}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.authService.Signup(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailNotAllowed):
			h.RespondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, services.ErrEmailExists):
			h.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
			h.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			h.Logger.Error("failed to sign up user", zap.Error(err))
			h.RespondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.RespondJSON(w, http.StatusCreated, map[string]any{
		"message": "account created successfully",
		"user":    user,
	})
}

// Logout handles POST /auth/logout. Destroys the session and evicts the
// cached identity so a revoked user cannot ride out the cache TTL.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, _ := middlewares.CurrentUser(r.Context())

	if cookie, err := r.Cookie(h.cookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.Logger.Warn("failed to destroy session on logout", zap.Error(err))
		}
	}

	if user != nil {
		if err := h.identity.Invalidate(r.Context(), user.ID); err != nil {
			h.Logger.Warn("failed to invalidate identity cache on logout",
				zap.Int("user_id", user.ID), zap.Error(err))
		}
	}

	h.clearSessionCookie(w)
	h.RespondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
