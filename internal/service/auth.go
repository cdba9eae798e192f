package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/capability"
	"github.com/researchhub/identity/internal/metrics"
	"github.com/researchhub/identity/internal/model"
	"github.com/researchhub/identity/internal/provider"
	"github.com/researchhub/identity/internal/repository"
	"github.com/researchhub/identity/internal/secrets"
)

// eventHistoryLimit caps per-provider audit events in user payloads.
const eventHistoryLimit = 8

// eventFetchLimit bounds the audit log query feeding the payload.
const eventFetchLimit = 40

// minLoginDuration is the floor for every login response. A store miss
// returns faster than a password verification, so without the floor response
// timing would reveal which accounts exist.
const minLoginDuration = 50 * time.Millisecond

// Store is the persistence surface the gateway needs.
// *repository.Repository satisfies it.
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	SetPasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ResetPasswordByToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error)

	UpsertIntegrationCredential(ctx context.Context, cred *model.IntegrationCredential) error
	RemoveIntegrationCredential(ctx context.Context, userID string, provider model.Provider) error
	GetIntegrationCredential(ctx context.Context, userID string, provider model.Provider) (*model.IntegrationCredential, error)
	ListIntegrationCredentials(ctx context.Context, userID string) ([]*model.IntegrationCredential, error)
	RecordIntegrationEvent(ctx context.Context, event *model.IntegrationEvent) error
	ListIntegrationEvents(ctx context.Context, userID string, limit int) ([]*model.IntegrationEvent, error)

	CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, now time.Time) error
}

// KeyValidator checks a submitted provider key against the provider's API.
type KeyValidator interface {
	ValidateKey(ctx context.Context, p model.Provider, key string) error
}

// ResetSender delivers password reset tokens to account owners.
// Actual email delivery is an external collaborator; the default
// implementation only logs.
type ResetSender interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Config holds gateway tunables.
type Config struct {
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	// ValidateIntegrationKeys gates live provider-side key checks.
	ValidateIntegrationKeys bool
}

// AuthService orchestrates the credential store, token issuing, and
// integration capability flows behind the HTTP handlers.
type AuthService struct {
	store     Store
	tokens    *auth.TokenIssuer
	box       *secrets.Box
	validator KeyValidator
	resets    ResetSender
	metrics   metrics.Recorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// NewAuthService wires the gateway with its collaborators.
func NewAuthService(
	store Store,
	tokens *auth.TokenIssuer,
	box *secrets.Box,
	validator KeyValidator,
	resets ResetSender,
	recorder metrics.Recorder,
	logger *slog.Logger,
	cfg Config,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		box:       box,
		validator: validator,
		resets:    resets,
		metrics:   recorder,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RegisterInput carries a registration request.
// IntegrationKeys holds submitted provider key overrides: presence means the
// field was sent, an empty value means remove.
type RegisterInput struct {
	Email        string
	Username     string
	Password     string
	FirstName    string
	LastName     string
	Organization string

	IntegrationKeys map[model.Provider]string
}

// LoginInput carries a login request. Identifier is an email or username.
type LoginInput struct {
	Identifier string
	Password   string

	IntegrationKeys map[model.Provider]string
}

// UserPayload is the serialized user enriched with tier limits and the
// derived per-provider integration states. Key material never appears here.
type UserPayload struct {
	model.User
	SearchLimit       int                                  `json:"search_limit"`
	CanSearchToday    bool                                 `json:"can_search_today"`
	Integrations      map[string]model.IntegrationState    `json:"integrations"`
	IntegrationEvents map[string][]*model.IntegrationEvent `json:"integration_events,omitempty"`
}

// Profile bundles the user payload with the capability snapshot.
type Profile struct {
	User         *UserPayload        `json:"user"`
	Capabilities capability.Snapshot `json:"integration_capabilities"`
}

// Session is the result of a successful register or login.
type Session struct {
	Profile
	Tokens             model.TokenPair
	IntegrationUpdates map[string]model.IntegrationUpdate
}

// Register creates a new account, applies any integration key overrides
// supplied alongside, and issues a token pair.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	// Validate submitted keys before touching the database so a rejected
	// key never leaves a half-registered account behind.
	if err := s.preValidateKeys(ctx, in.IntegrationKeys); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Organization: strings.TrimSpace(in.Organization),
		IsActive:     true,
		Role:         model.RoleUser,
		Tier:         model.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, &ConflictError{Field: "email", Message: "Email already registered"}
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, &ConflictError{Field: "username", Message: "Username already taken"}
		}
		return nil, err
	}

	updates, err := s.applyIntegrationKeys(ctx, user.ID, in.IntegrationKeys, true)
	if err != nil {
		return nil, err
	}

	pair, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.IncRegistration()
	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &Session{Profile: *profile, Tokens: pair, IntegrationUpdates: updates}, nil
}

// Login verifies credentials, applies any integration key overrides, and
// issues a fresh token pair. Unknown identifiers and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, &ValidationError{Message: "Missing credentials"}
	}

	started := time.Now()
	defer func() {
		if remaining := minLoginDuration - time.Since(started); remaining > 0 {
			time.Sleep(remaining)
		}
	}()

	user, err := s.store.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncLoginFailure()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	match, err := auth.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		s.metrics.IncLoginFailure()
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	updates, err := s.applyIntegrationKeys(ctx, user.ID, in.IntegrationKeys, false)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.store.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	user.LoginCount++

	pair, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLoginSuccess()
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &Session{Profile: *profile, Tokens: pair, IntegrationUpdates: updates}, nil
}

// Logout revokes the presented refresh token, if any. Best-effort and
// idempotent: the caller always sees success.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) {
	if refreshToken != "" {
		if err := s.store.RevokeRefreshToken(ctx, auth.HashToken(refreshToken), s.now().UTC()); err != nil {
			s.logger.Warn("refresh token revocation failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("user logged out", slog.String("user_id", userID))
}

// Rotate exchanges a refresh token for a new token pair. The old token is
// consumed atomically, so a replayed token fails as revoked.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	if refreshToken == "" {
		return model.TokenPair{}, ErrRefreshTokenInvalid
	}

	userID, err := s.store.ConsumeRefreshToken(ctx, auth.HashToken(refreshToken), s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRefreshTokenNotFound):
			return model.TokenPair{}, ErrRefreshTokenInvalid
		case errors.Is(err, repository.ErrRefreshTokenExpired):
			return model.TokenPair{}, ErrRefreshTokenExpired
		case errors.Is(err, repository.ErrRefreshTokenConsumed):
			s.metrics.IncTokenReplayBlocked()
			return model.TokenPair{}, ErrRefreshTokenRevoked
		}
		return model.TokenPair{}, err
	}

	pair, err := s.issueTokenPair(ctx, userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.metrics.IncTokenRotation()
	return pair, nil
}

// RequestPasswordReset starts the reset flow. The caller gets the same
// acknowledgment whether or not the account exists; a token is generated
// only for real accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same outcome as success from the caller's perspective.
			return nil
		}
		return err
	}

	token, hash, err := auth.GenerateResetToken()
	if err != nil {
		return err
	}

	expiresAt := s.now().UTC().Add(s.cfg.ResetTokenTTL)
	if err := s.store.SetPasswordReset(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}

	if err := s.resets.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error("password reset delivery failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.metrics.IncPasswordResetRequested()
	return nil
}

// ResetPassword completes the reset flow. The token is single-use: consuming
// it and swapping the password hash happen in one atomic store operation.
// All active refresh tokens die with the old password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if token == "" || password == "" {
		return &ValidationError{Message: "Token and password are required"}
	}
	if password != confirm {
		return &ValidationError{Field: "confirm_password", Message: "Passwords do not match"}
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	userID, err := s.store.ResetPasswordByToken(ctx, auth.HashToken(token), hash, now)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	if err := s.store.RevokeUserRefreshTokens(ctx, userID, now); err != nil {
		return err
	}

	s.metrics.IncPasswordResetCompleted()
	s.logger.Info("password reset completed", slog.String("user_id", userID))
	return nil
}

// ChangePassword updates the password for an authenticated user after
// verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	match, err := auth.VerifyPassword(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// Profile returns the current user payload with a freshly computed
// capability snapshot. Snapshots are never cached across requests.
func (s *AuthService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.buildProfile(ctx, user)
}

// UpdateProfile applies profile field changes and integration key overrides,
// then returns the refreshed profile.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate, keys map[model.Provider]string) (*Profile, map[string]model.IntegrationUpdate, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	if err := s.store.UpdateProfile(ctx, userID, update); err != nil {
		return nil, nil, err
	}

	updates, err := s.applyIntegrationKeys(ctx, userID, keys, false)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return profile, updates, nil
}

// issueTokenPair signs an access token and persists a fresh refresh token.
func (s *AuthService) issueTokenPair(ctx context.Context, userID string) (model.TokenPair, error) {
	access, err := s.tokens.Issue(userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	now := s.now().UTC()
	record := &model.RefreshToken{
		ID:        ulid.Make().String(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// preValidateKeys checks submitted keys against their providers before any
// write. Removals (empty values) need no validation.
func (s *AuthService) preValidateKeys(ctx context.Context, keys map[model.Provider]string) error {
	if !s.cfg.ValidateIntegrationKeys {
		return nil
	}
	for _, p := range model.Providers {
		raw, ok := keys[p]
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := s.validateKey(ctx, "", p, raw); err != nil {
			return err
		}
	}
	return nil
}

// applyIntegrationKeys walks providers in enumeration order so feedback and
// audit events are deterministic.
func (s *AuthService) applyIntegrationKeys(ctx context.Context, userID string, keys map[model.Provider]string, preValidated bool) (map[string]model.IntegrationUpdate, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	updates := make(map[string]model.IntegrationUpdate, len(keys))
	for _, p := range model.Providers {
		raw, ok := keys[p]
		if !ok {
			continue
		}
		update, err := s.applyIntegrationKey(ctx, userID, p, raw, preValidated)
		if err != nil {
			return nil, err
		}
		updates[string(p)] = update
	}
	return updates, nil
}

// applyIntegrationKey stores, refreshes, or removes one provider key.
func (s *AuthService) applyIntegrationKey(ctx context.Context, userID string, p model.Provider, raw string, preValidated bool) (model.IntegrationUpdate, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" {
		if err := s.store.RemoveIntegrationCredential(ctx, userID, p); err != nil {
			return model.IntegrationUpdate{}, err
		}
		s.recordEvent(ctx, userID, p, model.EventActionRemove, model.EventStatusSuccess, p.Label()+" key removed")
		s.metrics.IncIntegrationRemoved()
		return model.IntegrationUpdate{Status: model.IntegrationStatusRemoved}, nil
	}

	justLinked := true
	existing, err := s.store.GetIntegrationCredential(ctx, userID, p)
	if err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
		return model.IntegrationUpdate{}, err
	}
	// Only a sealed row can count as a prior link; unsealed or unreadable
	// rows are treated as absent and re-sealed below.
	if existing != nil && secrets.IsEncrypted(existing.EncryptedKey) {
		prior, err := s.box.Open(existing.EncryptedKey)
		if err != nil {
			s.logger.Warn("stored integration key unreadable",
				slog.String("user_id", userID),
				slog.String("provider", string(p)),
			)
		} else {
			justLinked = prior != raw
		}
	}

	if s.cfg.ValidateIntegrationKeys && !preValidated {
		if err := s.validateKey(ctx, userID, p, raw); err != nil {
			return model.IntegrationUpdate{}, err
		}
	}

	sealed, err := s.box.Seal(raw)
	if err != nil {
		return model.IntegrationUpdate{}, err
	}

	now := s.now().UTC()
	cred := &model.IntegrationCredential{
		ID:              ulid.Make().String(),
		UserID:          userID,
		Provider:        p,
		EncryptedKey:    sealed,
		LastValidatedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.UpsertIntegrationCredential(ctx, cred); err != nil {
		return model.IntegrationUpdate{}, err
	}

	s.recordEvent(ctx, userID, p, model.EventActionValidate, model.EventStatusSuccess, p.Label()+" key linked")
	s.metrics.IncIntegrationLinked()

	status := model.IntegrationStatusLinked
	if !justLinked {
		status = model.IntegrationStatusRefreshed
	}
	return model.IntegrationUpdate{
		Connected:       true,
		Status:          status,
		JustLinked:      justLinked,
		LastValidatedAt: &now,
	}, nil
}

// validateKey runs the provider check and converts failures into the typed
// IntegrationError the transport maps to a 400.
func (s *AuthService) validateKey(ctx context.Context, userID string, p model.Provider, raw string) error {
	err := s.validator.ValidateKey(ctx, p, raw)
	if err == nil {
		return nil
	}

	var keyErr *provider.KeyError
	if errors.As(err, &keyErr) {
		s.recordEvent(ctx, userID, p, model.EventActionValidate, model.EventStatusError, keyErr.Message)
		s.metrics.IncIntegrationRejected()
		return &IntegrationError{Provider: p, Message: keyErr.Message}
	}
	return err
}

// recordEvent appends an audit record, logging instead of failing the
// request when the write does not land.
func (s *AuthService) recordEvent(ctx context.Context, userID string, p model.Provider, action, status, message string) {
	if userID == "" {
		return
	}
	event := &model.IntegrationEvent{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Provider:  p,
		Action:    action,
		Status:    status,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.RecordIntegrationEvent(ctx, event); err != nil {
		s.logger.Warn("integration event not recorded",
			slog.String("user_id", userID),
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
	}
}

// buildProfile assembles the user payload and capability snapshot from the
// current credential rows.
func (s *AuthService) buildProfile(ctx context.Context, user *model.User) (*Profile, error) {
	creds, err := s.store.ListIntegrationCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	configured := make(map[model.Provider]bool, len(creds))
	states := make(map[string]model.IntegrationState, len(model.Providers))
	for _, p := range model.Providers {
		states[string(p)] = model.IntegrationState{Status: model.IntegrationStatusNotConfigured}
	}
	for _, cred := range creds {
		configured[cred.Provider] = true
		states[string(cred.Provider)] = model.IntegrationState{
			Connected:       true,
			Status:          model.IntegrationStatusLinked,
			LastValidatedAt: cred.LastValidatedAt,
		}
	}

	events, err := s.store.ListIntegrationEvents(ctx, user.ID, eventFetchLimit)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*model.IntegrationEvent)
	for _, event := range events {
		key := string(event.Provider)
		if len(grouped[key]) < eventHistoryLimit {
			grouped[key] = append(grouped[key], event)
		}
	}

	payload := &UserPayload{
		User:           *user,
		SearchLimit:    user.SearchQuota(),
		CanSearchToday: user.CanSearch(s.now().UTC()),
		Integrations:   states,
	}
	if len(grouped) > 0 {
		payload.IntegrationEvents = grouped
	}

	return &Profile{
		User:         payload,
		Capabilities: capability.Resolve(configured),
	}, nil
}
