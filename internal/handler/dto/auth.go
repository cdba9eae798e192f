// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/researchhub/identity/internal/capability"
	"github.com/researchhub/identity/internal/model"
	"github.com/researchhub/identity/internal/service"
)

// maxBodyBytes caps request bodies read by Decode.
const maxBodyBytes = 1 << 20

// ErrUnknownField reports a request body field outside the schema.
var ErrUnknownField = errors.New("unknown field in request body")

// Decode reads a JSON request body into dst. Unknown fields are rejected so
// typos like "pasword" fail loudly instead of being silently dropped.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A body with trailing garbage after the object is also malformed.
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// integrationKeyFields holds the optional provider key overrides shared by
// register, login, and profile update bodies. A present field with an empty
// value means remove; an absent field leaves the credential untouched.
type integrationKeyFields struct {
	PerplexityAPIKey *string `json:"perplexity_api_key,omitempty"`
	OpenAIAPIKey     *string `json:"openai_api_key,omitempty"`
	AnthropicAPIKey  *string `json:"anthropic_api_key,omitempty"`
	SerpAPIKey       *string `json:"serpapi_api_key,omitempty"`
}

// IntegrationKeys converts the optional fields into the override map the
// service consumes. Absent fields do not appear in the map. Field names pass
// through the provider enumeration, so a name outside it can never reach the
// service.
func (f integrationKeyFields) IntegrationKeys() map[model.Provider]string {
	fields := map[string]*string{
		"perplexity": f.PerplexityAPIKey,
		"openai":     f.OpenAIAPIKey,
		"anthropic":  f.AnthropicAPIKey,
		"serpapi":    f.SerpAPIKey,
	}

	keys := make(map[model.Provider]string, len(fields))
	for name, value := range fields {
		if value == nil {
			continue
		}
		p, ok := model.ParseProvider(name)
		if !ok {
			continue
		}
		keys[p] = *value
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}

// RegisterRequest represents the request body for creating an account.
type RegisterRequest struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Organization string `json:"organization,omitempty"`

	integrationKeyFields
}

// LoginRequest represents the request body for logging in.
// The email field also accepts a username.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	integrationKeyFields
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest optionally carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes the password reset flow.
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePasswordRequest changes the password of an authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateProfileRequest represents the request body for PUT /me.
// Nil fields leave the corresponding profile field untouched.
type UpdateProfileRequest struct {
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	Organization *string `json:"organization,omitempty"`
	Bio          *string `json:"bio,omitempty"`

	integrationKeyFields
}

// ProfileUpdate converts the request into the service-level field update.
func (r UpdateProfileRequest) ProfileUpdate() model.ProfileUpdate {
	return model.ProfileUpdate{
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Organization: r.Organization,
		Bio:          r.Bio,
	}
}

// SessionResponse is the body returned by register, login, and refresh.
type SessionResponse struct {
	User               *service.UserPayload               `json:"user,omitempty"`
	Capabilities       *capability.Snapshot               `json:"integration_capabilities,omitempty"`
	IntegrationUpdates map[string]model.IntegrationUpdate `json:"integration_updates,omitempty"`
	AccessToken        string                             `json:"access_token"`
	RefreshToken       string                             `json:"refresh_token"`
	TokenType          string                             `json:"token_type"`
	ExpiresIn          int64                              `json:"expires_in"`
}

// ToSessionResponse builds the response for a fresh session.
func ToSessionResponse(session *service.Session, accessTTL time.Duration) *SessionResponse {
	return &SessionResponse{
		User:               session.User,
		Capabilities:       &session.Capabilities,
		IntegrationUpdates: session.IntegrationUpdates,
		AccessToken:        session.Tokens.AccessToken,
		RefreshToken:       session.Tokens.RefreshToken,
		TokenType:          "Bearer",
		ExpiresIn:          int64(accessTTL.Seconds()),
	}
}

// ToTokenResponse builds the response for a token rotation, which carries no
// user payload.
func ToTokenResponse(pair model.TokenPair, accessTTL time.Duration) *SessionResponse {
	return &SessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
	}
}

// ProfileResponse is the body returned by GET /me and PUT /me.
type ProfileResponse struct {
	User               *service.UserPayload               `json:"user"`
	Capabilities       capability.Snapshot                `json:"integration_capabilities"`
	IntegrationUpdates map[string]model.IntegrationUpdate `json:"integration_updates,omitempty"`
}

// MessageResponse is a plain acknowledgment body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorBody is the inner error object of an ErrorResponse.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
