package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
	"github.com/tunehub/music-api/internal/infrastructure/security"
	"github.com/tunehub/music-api/internal/infrastructure/token"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account

	findErr error
	// beforeStateWrite runs once, before the first UpdateLoginState, to
	// simulate a concurrent writer.
	beforeStateWrite func(a *domain.Account)
	stateWrites      int
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.LockUntil != nil {
		t := *a.LockUntil
		clone.LockUntil = &t
	}
	return &clone
}

func (r *stubAccountRepo) Create(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return nil, domain.ErrConflict
		}
	}
	c := cloneAccount(a)
	c.ID = primitive.NewObjectID().Hex()
	r.accounts[c.ID] = c
	return cloneAccount(c), nil
}

func (r *stubAccountRepo) find(match func(a *domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, a := range r.accounts {
		if match(a) {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Username == username })
}

func (r *stubAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == domain.NormalizeEmail(email) })
}

func (r *stubAccountRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := cloneAccount(a)
	c.PasswordHash = ""
	c.RefreshToken = ""
	return c, nil
}

func (r *stubAccountRepo) UpdateLoginState(_ context.Context, id string, expected, next domain.LoginState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return false, nil
	}
	if r.beforeStateWrite != nil {
		r.beforeStateWrite(a)
		r.beforeStateWrite = nil
	}
	r.stateWrites++
	if a.FailedAttempts != expected.FailedAttempts {
		return false, nil
	}
	a.LoginState = next
	return true, nil
}

func (r *stubAccountRepo) CompleteLogin(_ context.Context, id, refreshToken string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.LoginState = domain.LoginState{}
	a.RefreshToken = refreshToken
	a.LastLoginAt = &at
	return nil
}

func (r *stubAccountRepo) RotateRefreshToken(_ context.Context, id, presented, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.RefreshToken == "" || a.RefreshToken != presented {
		return false, nil
	}
	a.RefreshToken = next
	return true, nil
}

func (r *stubAccountRepo) ClearRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.RefreshToken = ""
	}
	return nil
}

// stored returns the raw stored record, secrets included.
func (r *stubAccountRepo) stored(t *testing.T, username string) *domain.Account {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == username {
			return cloneAccount(a)
		}
	}
	t.Fatalf("account %q not stored", username)
	return nil
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("entropy exhausted") }
func (failingHasher) Verify(string, string) bool  { return false }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestIssuer(t *testing.T) *token.JWTIssuer {
	t.Helper()
	iss, err := token.NewJWTIssuer(token.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func newTestAuthService(t *testing.T, repo *stubAccountRepo) *AuthService {
	t.Helper()
	return NewAuthService(
		repo,
		security.NewBcryptHasher(bcrypt.MinCost),
		newTestIssuer(t),
		domain.NewLockoutPolicy(5, 10*time.Minute),
		zerolog.Nop(),
	)
}

func registerA1(t *testing.T, svc *AuthService) *domain.AccountView {
	t.Helper()
	view, err := svc.Register(context.Background(), ports.RegisterInput{
		Name:     "A",
		Username: "a1",
		Email:    "a@x.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return view
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)

	view := registerA1(t, svc)
	if view.ID == "" || view.Username != "a1" || view.Role != domain.RoleUser {
		t.Fatalf("unexpected view: %+v", view)
	}

	stored := repo.stored(t, "a1")
	if stored.PasswordHash == "secret123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if stored.FailedAttempts != 0 || stored.LockUntil != nil || stored.RefreshToken != "" {
		t.Fatalf("unexpected initial state: %+v", stored)
	}
	if !stored.Active || stored.Blocked {
		t.Fatalf("expected active, unblocked account")
	}
}

func TestAuthService_Register_NormalizesEmail(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Name: " Bea ", Username: " bea ", Email: " Bea@Example.COM ", Password: "password1", Role: "artist",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	stored := repo.stored(t, "bea")
	if stored.Email != "bea@example.com" || stored.Name != "Bea" || stored.Role != domain.RoleArtist {
		t.Fatalf("unexpected stored account: %+v", stored)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())

	tests := []struct {
		name string
		in   ports.RegisterInput
	}{
		{"missing name", ports.RegisterInput{Username: "u", Email: "u@x.com", Password: "password1"}},
		{"missing password", ports.RegisterInput{Name: "U", Username: "u", Email: "u@x.com"}},
		{"bad email", ports.RegisterInput{Name: "U", Username: "u", Email: "not-an-email", Password: "password1"}},
		{"short password", ports.RegisterInput{Name: "U", Username: "u", Email: "u@x.com", Password: "short"}},
		{"admin self-registration", ports.RegisterInput{Name: "U", Username: "u", Email: "u@x.com", Password: "password1", Role: "ADMIN"}},
		{"unknown role", ports.RegisterInput{Name: "U", Username: "u", Email: "u@x.com", Password: "password1", Role: "guest"}},
		{"password over 72 bytes", ports.RegisterInput{Name: "U", Username: "u", Email: "u@x.com", Password: strings.Repeat("p", 73)}},
		{"username with at sign", ports.RegisterInput{Name: "U", Username: "v@x.com", Email: "u@x.com", Password: "password1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())
	registerA1(t, svc)

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Name: "Other", Username: "a1", Email: "other@x.com", Password: "secret123",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuthService_Register_HashFailureAborts(t *testing.T) {
	repo := newStubAccountRepo()
	svc := NewAuthService(repo, failingHasher{}, newTestIssuer(t), domain.NewLockoutPolicy(5, time.Minute), zerolog.Nop())

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Name: "A", Username: "a1", Email: "a@x.com", Password: "secret123",
	})
	if err == nil || domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(repo.accounts) != 0 {
		t.Fatalf("expected no account to be stored")
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_Login_SuccessByUsername(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)

	res, err := svc.Login(context.Background(), "a1", "secret123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens")
	}
	if res.Account.Username != "a1" || res.Account.Role != domain.RoleUser {
		t.Fatalf("unexpected account view: %+v", res.Account)
	}

	stored := repo.stored(t, "a1")
	if stored.RefreshToken != res.Tokens.RefreshToken {
		t.Fatalf("expected refresh token to be persisted")
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login to be stamped")
	}
}

func TestAuthService_Login_SuccessByEmail(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())
	registerA1(t, svc)

	if _, err := svc.Login(context.Background(), "A@X.com", "secret123"); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
}

func TestAuthService_Register_MaxLengthPasswordAccepted(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())

	if _, err := svc.Register(context.Background(), ports.RegisterInput{
		Name: "U", Username: "u", Email: "u@x.com", Password: strings.Repeat("p", 72),
	}); err != nil {
		t.Fatalf("72-byte password rejected: %v", err)
	}
}

func TestAuthService_Login_EmailNeverMatchesUsername(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	hasher := security.NewBcryptHasher(bcrypt.MinCost)

	victimHash, _ := hasher.Hash("victim-pass")
	otherHash, _ := hasher.Hash("other-pass")
	// Seeded directly: registration no longer admits '@' in usernames.
	if _, err := repo.Create(context.Background(), &domain.Account{
		Username: "victim", Email: "v@x.com", PasswordHash: victimHash, Role: domain.RoleUser, Active: true,
	}); err != nil {
		t.Fatalf("seed victim: %v", err)
	}
	if _, err := repo.Create(context.Background(), &domain.Account{
		Username: "v@x.com", Email: "other@x.com", PasswordHash: otherHash, Role: domain.RoleUser, Active: true,
	}); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	if _, err := svc.Login(context.Background(), "v@x.com", "other-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := repo.stored(t, "victim").FailedAttempts; got != 1 {
		t.Fatalf("expected failure charged to email owner, got %d", got)
	}
	if got := repo.stored(t, "v@x.com").FailedAttempts; got != 0 {
		t.Fatalf("expected username account untouched, got %d", got)
	}

	res, err := svc.Login(context.Background(), "V@X.com", "victim-pass")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if res.Account.Username != "victim" {
		t.Fatalf("resolved wrong account: %+v", res.Account)
	}
}

func TestAuthService_Login_UnknownIdentifier(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())

	if _, err := svc.Login(context.Background(), "ghost", "whatever"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_MissingFields(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())

	if _, err := svc.Login(context.Background(), "", "pw"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthService_Login_WrongPasswordIncrementsCounter(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)

	if _, err := svc.Login(context.Background(), "a1", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := repo.stored(t, "a1").FailedAttempts; got != 1 {
		t.Fatalf("expected 1 failed attempt, got %d", got)
	}
}

func TestAuthService_Login_LocksAfterFiveFailures(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(ctx, "a1", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	stored := repo.stored(t, "a1")
	if stored.LockUntil == nil || !stored.LockUntil.After(time.Now()) {
		t.Fatalf("expected future lock, got %v", stored.LockUntil)
	}

	// Sixth attempt with the correct password is still rejected as locked.
	_, err := svc.Login(ctx, "a1", "secret123")
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("locked error must be distinguishable from invalid credentials")
	}
	if got := repo.stored(t, "a1").FailedAttempts; got != 5 {
		t.Fatalf("expected counter to stay at 5, got %d", got)
	}
}

func TestAuthService_Login_LockExpires(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)
	ctx := context.Background()

	start := time.Now().UTC()
	svc.now = func() time.Time { return start }
	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, "a1", "wrong-pass")
	}

	svc.now = func() time.Time { return start.Add(11 * time.Minute) }
	if _, err := svc.Login(ctx, "a1", "secret123"); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}

	stored := repo.stored(t, "a1")
	if stored.FailedAttempts != 0 || stored.LockUntil != nil {
		t.Fatalf("expected cleared lockout state, got %+v", stored.LoginState)
	}
}

func TestAuthService_Login_SuccessResetsPriorFailures(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, "a1", "wrong-pass")
	}
	if _, err := svc.Login(ctx, "a1", "secret123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if got := repo.stored(t, "a1").FailedAttempts; got != 0 {
		t.Fatalf("expected counter reset, got %d", got)
	}
}

func TestAuthService_Login_RetriesOnConcurrentCounterWrite(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)

	repo.beforeStateWrite = func(a *domain.Account) {
		a.FailedAttempts = 2
	}

	if _, err := svc.Login(context.Background(), "a1", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := repo.stored(t, "a1").FailedAttempts; got != 3 {
		t.Fatalf("expected re-read counter to be incremented to 3, got %d", got)
	}
	if repo.stateWrites != 2 {
		t.Fatalf("expected 2 write attempts, got %d", repo.stateWrites)
	}
}

func TestAuthService_Login_BlockedAccount(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	view := registerA1(t, svc)
	repo.accounts[view.ID].Blocked = true

	if _, err := svc.Login(context.Background(), "a1", "secret123"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "a1", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if repo.stored(t, "a1").RefreshToken != "" {
		t.Fatalf("blocked account must not receive a refresh token")
	}
}

func TestAuthService_Login_StoreFailureIsInternal(t *testing.T) {
	repo := newStubAccountRepo()
	repo.findErr = errors.New("connection reset")
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), "a1", "secret123")
	if err == nil || domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Logout / Refresh
// ---------------------------------------------------------------------------

func TestAuthService_Logout_Idempotent(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	view := registerA1(t, svc)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "a1", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Logout(ctx, view.ID); err != nil {
			t.Fatalf("logout %d: %v", i+1, err)
		}
	}
	if repo.stored(t, "a1").RefreshToken != "" {
		t.Fatalf("expected refresh token to be cleared")
	}
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	registerA1(t, svc)
	ctx := context.Background()

	res, err := svc.Login(ctx, "a1", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	pair, err := svc.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if pair.RefreshToken == res.Tokens.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}
	if repo.stored(t, "a1").RefreshToken != pair.RefreshToken {
		t.Fatalf("expected rotated token to be stored")
	}

	if _, err := svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected replayed token to fail with ErrInvalidToken, got %v", err)
	}

	if _, err := svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotated token should still work: %v", err)
	}
}

func TestAuthService_Refresh_AfterLogout(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo())
	view := registerA1(t, svc)
	ctx := context.Background()

	res, err := svc.Login(ctx, "a1", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(ctx, view.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_Refresh_Rejections(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	// Valid signature, but the account is gone.
	orphan, err := newTestIssuer(t).Issue(&domain.Account{ID: primitive.NewObjectID().Hex(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Refresh(ctx, orphan.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown account, got %v", err)
	}

	// An access token is not a refresh token.
	registerA1(t, svc)
	res, err := svc.Login(ctx, "a1", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Refresh(ctx, res.Tokens.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}
}

func TestAuthService_Refresh_BlockedAccount(t *testing.T) {
	repo := newStubAccountRepo()
	svc := newTestAuthService(t, repo)
	view := registerA1(t, svc)
	ctx := context.Background()

	res, err := svc.Login(ctx, "a1", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	repo.accounts[view.ID].Blocked = true

	if _, err := svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
