package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/handler/dto"
	"github.com/researchhub/identity/internal/service"
)

// resetAckMessage is returned for every forgot-password request so callers
// cannot probe which addresses have accounts.
const resetAckMessage = "If an account exists for that email, a reset link has been sent."

// AuthHandler handles HTTP requests for the auth and profile endpoints.
type AuthHandler struct {
	svc       *service.AuthService
	logger    *slog.Logger
	accessTTL time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		svc:       svc,
		logger:    logger,
		accessTTL: accessTTL,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	session, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Organization:    req.Organization,
		IntegrationKeys: req.IntegrationKeys(),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("registration_completed",
		"user_id", session.User.ID,
		"integrations_submitted", len(req.IntegrationKeys()),
	)

	writeJSON(w, http.StatusCreated, dto.ToSessionResponse(session, h.accessTTL))
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	session, err := h.svc.Login(r.Context(), service.LoginInput{
		Identifier:      req.Email,
		Password:        req.Password,
		IntegrationKeys: req.IntegrationKeys(),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSessionResponse(session, h.accessTTL))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	pair, err := h.svc.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTokenResponse(pair, h.accessTTL))
}

// Logout handles POST /api/v1/auth/logout. Requires authentication.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req dto.LogoutRequest
	if err := dto.Decode(r, &req); err != nil {
		// An empty or malformed body still logs the caller out.
		req.RefreshToken = ""
	}

	h.svc.Logout(r.Context(), userID, req.RefreshToken)

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out"})
}

// ForgotPassword handles POST /api/v1/auth/password/forgot.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: resetAckMessage})
}

// ResetPassword handles POST /api/v1/auth/password/reset.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Password updated"})
}

// ChangePassword handles POST /api/v1/auth/change-password. Requires
// authentication.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req dto.ChangePasswordRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Password updated"})
}

// Me handles GET /api/v1/auth/me. Requires authentication.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProfileResponse{
		User:         profile.User,
		Capabilities: profile.Capabilities,
	})
}

// UpdateMe handles PUT /api/v1/auth/me. Requires authentication.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req dto.UpdateProfileRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	profile, updates, err := h.svc.UpdateProfile(r.Context(), userID, req.ProfileUpdate(), req.IntegrationKeys())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProfileResponse{
		User:               profile.User,
		Capabilities:       profile.Capabilities,
		IntegrationUpdates: updates,
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *AuthHandler) handleServiceError(w http.ResponseWriter, err error) {
	var (
		verr *service.ValidationError
		cerr *service.ConflictError
		ierr *service.IntegrationError
	)

	switch {
	case errors.As(err, &verr):
		writeFieldError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message, verr.Field)
	case errors.As(err, &cerr):
		writeFieldError(w, http.StatusConflict, "CONFLICT", cerr.Message, cerr.Field)
	case errors.As(err, &ierr):
		writeFieldError(w, http.StatusBadRequest, "INTEGRATION_KEY_REJECTED", ierr.Message, string(ierr.Provider)+"_api_key")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, service.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled")
	case errors.Is(err, service.ErrRefreshTokenInvalid):
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid refresh token")
	case errors.Is(err, service.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, service.ErrRefreshTokenRevoked):
		writeError(w, http.StatusUnauthorized, "REFRESH_TOKEN_REVOKED", "Refresh token has been revoked")
	case errors.Is(err, service.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired reset token")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
