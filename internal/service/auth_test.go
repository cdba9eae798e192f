package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/metrics"
	"github.com/researchhub/identity/internal/model"
	"github.com/researchhub/identity/internal/provider"
	"github.com/researchhub/identity/internal/repository"
	"github.com/researchhub/identity/internal/secrets"
)

// fakeStore is an in-memory Store for exercising the gateway without
// Postgres.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	creds   map[string]map[model.Provider]*model.IntegrationCredential
	tokens  map[string]*model.RefreshToken
	events  []*model.IntegrationEvent
	resets  map[string]resetEntry // token hash -> entry
	loginAt map[string]time.Time
}

type resetEntry struct {
	userID    string
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*model.User),
		creds:   make(map[string]map[model.Provider]*model.IntegrationCredential),
		tokens:  make(map[string]*model.RefreshToken),
		resets:  make(map[string]resetEntry),
		loginAt: make(map[string]time.Time),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeStore) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == identifier || u.Username == identifier {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeStore) UpdateProfile(_ context.Context, userID string, update model.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if update.FirstName != nil {
		u.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		u.LastName = *update.LastName
	}
	if update.Organization != nil {
		u.Organization = *update.Organization
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	return nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LastLoginAt = &at
	u.LoginCount++
	f.loginAt[userID] = at
	return nil
}

func (f *fakeStore) SetPasswordReset(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return repository.ErrUserNotFound
	}
	f.resets[tokenHash] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) ResetPasswordByToken(_ context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.resets[tokenHash]
	if !ok || now.After(entry.expiresAt) {
		return "", repository.ErrUserNotFound
	}
	u, ok := f.users[entry.userID]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	u.PasswordHash = newPasswordHash
	delete(f.resets, tokenHash)
	return u.ID, nil
}

func (f *fakeStore) UpsertIntegrationCredential(_ context.Context, cred *model.IntegrationCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byProvider, ok := f.creds[cred.UserID]
	if !ok {
		byProvider = make(map[model.Provider]*model.IntegrationCredential)
		f.creds[cred.UserID] = byProvider
	}
	clone := *cred
	byProvider[cred.Provider] = &clone
	return nil
}

func (f *fakeStore) RemoveIntegrationCredential(_ context.Context, userID string, p model.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds[userID], p)
	return nil
}

func (f *fakeStore) GetIntegrationCredential(_ context.Context, userID string, p model.Provider) (*model.IntegrationCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[userID][p]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	clone := *cred
	return &clone, nil
}

func (f *fakeStore) ListIntegrationCredentials(_ context.Context, userID string) ([]*model.IntegrationCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.IntegrationCredential
	for _, p := range model.Providers {
		if cred, ok := f.creds[userID][p]; ok {
			clone := *cred
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordIntegrationEvent(_ context.Context, event *model.IntegrationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *event
	f.events = append([]*model.IntegrationEvent{&clone}, f.events...)
	return nil
}

func (f *fakeStore) ListIntegrationEvents(_ context.Context, userID string, limit int) ([]*model.IntegrationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.IntegrationEvent
	for _, e := range f.events {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, token *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *token
	f.tokens[token.TokenHash] = &clone
	return nil
}

func (f *fakeStore) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenHash]
	if !ok {
		return "", repository.ErrRefreshTokenNotFound
	}
	if token.ConsumedAt != nil {
		return "", repository.ErrRefreshTokenConsumed
	}
	if now.After(token.ExpiresAt) {
		return "", repository.ErrRefreshTokenExpired
	}
	consumed := now
	token.ConsumedAt = &consumed
	return token.UserID, nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, tokenHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.tokens[tokenHash]; ok && token.ConsumedAt == nil {
		consumed := now
		token.ConsumedAt = &consumed
	}
	return nil
}

func (f *fakeStore) RevokeUserRefreshTokens(_ context.Context, userID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.UserID == userID && token.ConsumedAt == nil {
			consumed := now
			token.ConsumedAt = &consumed
		}
	}
	return nil
}

// fakeValidator rejects keys listed in bad and records what it saw.
type fakeValidator struct {
	mu    sync.Mutex
	bad   map[string]bool
	calls []model.Provider
}

func (v *fakeValidator) ValidateKey(_ context.Context, p model.Provider, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, p)
	if v.bad[key] {
		return &provider.KeyError{Provider: p, Message: "Invalid " + p.Label() + " API key"}
	}
	return nil
}

// fakeResetSender captures issued reset tokens instead of sending mail.
type fakeResetSender struct {
	mu     sync.Mutex
	tokens map[string]string // email -> last token
}

func newFakeResetSender() *fakeResetSender {
	return &fakeResetSender{tokens: make(map[string]string)}
}

func (s *fakeResetSender) SendPasswordReset(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[email] = token
	return nil
}

type testEnv struct {
	svc     *AuthService
	store   *fakeStore
	resets  *fakeResetSender
	checker *fakeValidator
	metrics *metrics.InMemoryRecorder
}

func newTestEnv(t *testing.T, validateKeys bool) *testEnv {
	t.Helper()

	box, err := secrets.NewBox("test-secret-key")
	require.NoError(t, err)

	store := newFakeStore()
	resets := newFakeResetSender()
	checker := &fakeValidator{bad: map[string]bool{"rejected-key": true}}
	recorder := metrics.NewInMemory()

	svc := NewAuthService(
		store,
		auth.NewTokenIssuer([]byte("jwt-test-secret"), time.Hour),
		box,
		checker,
		resets,
		recorder,
		slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		Config{
			RefreshTokenTTL:         30 * 24 * time.Hour,
			ResetTokenTTL:           time.Hour,
			ValidateIntegrationKeys: validateKeys,
		},
	)

	return &testEnv{svc: svc, store: store, resets: resets, checker: checker, metrics: recorder}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:    "ada@example.com",
		Username: "ada_lovelace",
		Password: "Sup3r$ecret",
	}
}

func TestRegisterIssuesUsableTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	require.NotEmpty(t, session.Tokens.AccessToken)
	require.NotEmpty(t, session.Tokens.RefreshToken)
	assert.Equal(t, model.TierFree, session.User.Tier)
	assert.Equal(t, 10, session.User.SearchLimit)

	pair, err := env.svc.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.Tokens.RefreshToken, pair.RefreshToken)

	// A fresh account has its full daily quota available.
	assert.True(t, session.User.CanSearchToday)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	dup := validRegisterInput()
	dup.Username = "someone_else"
	_, err = env.svc.Register(ctx, dup)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)

	dup = validRegisterInput()
	dup.Email = "other@example.com"
	_, err = env.svc.Register(ctx, dup)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "username", conflict.Field)
}

func TestRegisterValidatesPasswordPolicy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	for _, password := range []string{
		"short1!",      // too short
		"alllower1!",   // no uppercase
		"ALLUPPER1!",   // no lowercase
		"NoDigits!!",   // no digit
		"NoSpecial123", // no special character
	} {
		in := validRegisterInput()
		in.Password = password
		_, err := env.svc.Register(ctx, in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "password %q should be rejected", password)
		assert.Equal(t, "password", verr.Field)
	}
}

func TestLoginUnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	_, errUnknown := env.svc.Login(ctx, LoginInput{Identifier: "ghost@example.com", Password: "Sup3r$ecret"})
	_, errWrongPw := env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Wr0ng$ecret"})

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestLoginResponseTimeIsFloored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	// A store miss returns without a password verification, so it must be
	// padded up to the floor.
	started := time.Now()
	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ghost@example.com", Password: "Sup3r$ecret"})
	elapsed := time.Since(started)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.GreaterOrEqual(t, elapsed, minLoginDuration)

	started = time.Now()
	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Wr0ng$ecret"})
	elapsed = time.Since(started)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.GreaterOrEqual(t, elapsed, minLoginDuration)
}

func TestLoginSucceedsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Wr0ng$ecret"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	session, err := env.svc.Login(ctx, LoginInput{Identifier: "ada_lovelace", Password: "Sup3r$ecret"})
	require.NoError(t, err)
	assert.Equal(t, 1, session.User.LoginCount)
	require.NotNil(t, session.User.LastLoginAt)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	env.store.mu.Lock()
	env.store.users[session.User.ID].IsActive = false
	env.store.mu.Unlock()

	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRotateIsSingleUse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	first, err := env.svc.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	// Replay of the consumed token must fail and be counted.
	_, err = env.svc.Rotate(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().TokenReplaysBlocked)

	// The replacement still works.
	_, err = env.svc.Rotate(ctx, first.RefreshToken)
	assert.NoError(t, err)
}

func TestRotateUnknownToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	_, err := env.svc.Rotate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	env.svc.Logout(ctx, session.User.ID, session.Tokens.RefreshToken)

	_, err = env.svc.Rotate(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	// Unknown address gets the same nil outcome and no token.
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Empty(t, env.resets.tokens["ghost@example.com"])

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "ada@example.com"))
	token := env.resets.tokens["ada@example.com"]
	require.NotEmpty(t, token)

	err = env.svc.ResetPassword(ctx, token, "N3w$ecretPw", "N3w$ecretPw")
	require.NoError(t, err)

	// Old password no longer works, new one does.
	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "N3w$ecretPw"})
	require.NoError(t, err)

	// Reset kills outstanding refresh tokens and the token is single-use.
	_, err = env.svc.Rotate(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	err = env.svc.ResetPassword(ctx, token, "An0ther$ecret", "An0ther$ecret")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	err := env.svc.ResetPassword(context.Background(), "tok", "N3w$ecretPw", "D1fferent$pw")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirm_password", verr.Field)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	userID := session.User.ID

	err = env.svc.ChangePassword(ctx, userID, "Wr0ng$ecret", "N3w$ecretPw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.svc.ChangePassword(ctx, userID, "Sup3r$ecret", "weak")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	err = env.svc.ChangePassword(ctx, userID, "Sup3r$ecret", "N3w$ecretPw")
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "N3w$ecretPw"})
	assert.NoError(t, err)
}

func TestCapabilitiesTrackKeyChanges(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	userID := session.User.ID

	assert.False(t, session.Capabilities.HasPremiumSearch)
	assert.False(t, session.Capabilities.HasPremiumAI)

	profile, updates, err := env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderPerplexity: "pplx-key",
		model.ProviderAnthropic:  "sk-ant-key",
	})
	require.NoError(t, err)
	assert.True(t, profile.Capabilities.HasPremiumSearch)
	assert.True(t, profile.Capabilities.HasPremiumAI)
	assert.False(t, profile.Capabilities.HasEnrichment)
	assert.Equal(t, []string{"perplexity"}, profile.Capabilities.SearchProviders)
	assert.Equal(t, []string{"anthropic"}, profile.Capabilities.AIModelProviders)
	require.Contains(t, updates, "perplexity")
	assert.True(t, updates["perplexity"].JustLinked)
	assert.Equal(t, model.IntegrationStatusLinked, updates["perplexity"].Status)

	// Resubmitting the same key is a refresh, not a new link.
	_, updates, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderPerplexity: "pplx-key",
	})
	require.NoError(t, err)
	assert.False(t, updates["perplexity"].JustLinked)
	assert.Equal(t, model.IntegrationStatusRefreshed, updates["perplexity"].Status)

	// Removal flips the capability immediately.
	profile, updates, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderPerplexity: "",
	})
	require.NoError(t, err)
	assert.False(t, profile.Capabilities.HasPremiumSearch)
	assert.Equal(t, model.IntegrationStatusRemoved, updates["perplexity"].Status)
}

func TestSerpAPIGrantsSearchAndEnrichment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	profile, _, err := env.svc.UpdateProfile(ctx, session.User.ID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderSerpAPI: "serp-key",
	})
	require.NoError(t, err)
	assert.True(t, profile.Capabilities.HasPremiumSearch)
	assert.True(t, profile.Capabilities.HasEnrichment)
	assert.False(t, profile.Capabilities.HasPremiumAI)
	assert.Equal(t, []string{"serpapi"}, profile.Capabilities.PoweredBy)
}

func TestRejectedKeyBlocksRegistration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)
	ctx := context.Background()

	in := validRegisterInput()
	in.IntegrationKeys = map[model.Provider]string{model.ProviderOpenAI: "rejected-key"}

	_, err := env.svc.Register(ctx, in)
	var ierr *IntegrationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, model.ProviderOpenAI, ierr.Provider)

	// Pre-validation failed, so no account was created.
	_, err = env.svc.Login(ctx, LoginInput{Identifier: "ada@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRejectedKeyOnUpdateLeavesExistingCredential(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	userID := session.User.ID

	profile, _, err := env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "good-key",
	})
	require.NoError(t, err)
	assert.True(t, profile.Capabilities.HasPremiumAI)

	_, _, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "rejected-key",
	})
	var ierr *IntegrationError
	require.ErrorAs(t, err, &ierr)

	profile, err = env.svc.Profile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, profile.Capabilities.HasPremiumAI)
}

func TestUnsealedStoredKeyIsRelinked(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	userID := session.User.ID

	// A row written before encryption was in place stores the key as-is.
	now := time.Now().UTC()
	require.NoError(t, env.store.UpsertIntegrationCredential(ctx, &model.IntegrationCredential{
		ID:           "legacy",
		UserID:       userID,
		Provider:     model.ProviderOpenAI,
		EncryptedKey: "sk-legacy-key",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	// Resubmitting the same key counts as a new link and seals the row.
	_, updates, err := env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "sk-legacy-key",
	})
	require.NoError(t, err)
	assert.True(t, updates["openai"].JustLinked)
	assert.Equal(t, model.IntegrationStatusLinked, updates["openai"].Status)

	stored, err := env.store.GetIntegrationCredential(ctx, userID, model.ProviderOpenAI)
	require.NoError(t, err)
	assert.True(t, secrets.IsEncrypted(stored.EncryptedKey))

	// Once sealed, the same key is a refresh.
	_, updates, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "sk-legacy-key",
	})
	require.NoError(t, err)
	assert.False(t, updates["openai"].JustLinked)
	assert.Equal(t, model.IntegrationStatusRefreshed, updates["openai"].Status)
}

func TestRemovingAbsentKeyIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	_, updates, err := env.svc.UpdateProfile(ctx, session.User.ID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderSerpAPI: "   ",
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationStatusRemoved, updates["serpapi"].Status)
	assert.False(t, updates["serpapi"].Connected)
}

func TestUpdateProfileFields(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	first := "Ada"
	bio := "Analyst"
	profile, _, err := env.svc.UpdateProfile(ctx, session.User.ID, model.ProfileUpdate{
		FirstName: &first,
		Bio:       &bio,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.User.FirstName)
	assert.Equal(t, "Analyst", profile.User.Bio)
	// Untouched fields survive.
	assert.Equal(t, "ada_lovelace", profile.User.Username)
}

func TestProfileRecordsIntegrationEvents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	ctx := context.Background()

	session, err := env.svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	userID := session.User.ID

	_, _, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "good-key",
	})
	require.NoError(t, err)
	_, _, err = env.svc.UpdateProfile(ctx, userID, model.ProfileUpdate{}, map[model.Provider]string{
		model.ProviderOpenAI: "",
	})
	require.NoError(t, err)

	profile, err := env.svc.Profile(ctx, userID)
	require.NoError(t, err)
	events := profile.User.IntegrationEvents["openai"]
	require.Len(t, events, 2)
	assert.Equal(t, model.EventActionRemove, events[0].Action)
	assert.Equal(t, model.EventActionValidate, events[1].Action)
}
