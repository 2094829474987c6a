package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
)

const (
	minPasswordLength = 8
	// maxPasswordBytes is bcrypt's input limit.
	maxPasswordBytes = 72
	// maxStateWriteAttempts bounds the optimistic retry loop on the
	// failed-attempt counter.
	maxStateWriteAttempts = 3
)

// AuthService implements registration and the session lifecycle.
type AuthService struct {
	repo     ports.AccountRepository
	hasher   ports.PasswordHasher
	tokens   ports.TokenIssuer
	policy   domain.LockoutPolicy
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(
	repo ports.AccountRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	policy domain.LockoutPolicy,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		policy:   policy,
		validate: validator.New(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a new account. Self-registration may pick USER or ARTIST.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.AccountView, error) {
	name := strings.TrimSpace(in.Name)
	username := strings.TrimSpace(in.Username)
	email := domain.NormalizeEmail(in.Email)

	if name == "" || username == "" || email == "" || in.Password == "" {
		return nil, domain.NewValidationError("all fields are required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, domain.NewValidationError("email must be a valid email")
	}
	if strings.Contains(username, "@") {
		return nil, domain.NewValidationError("username must not contain '@'")
	}
	if len(in.Password) < minPasswordLength {
		return nil, domain.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, domain.NewValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok || role == domain.RoleAdmin {
		return nil, domain.NewValidationError("role must be one of: USER ARTIST")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.now()
	created, err := s.repo.Create(ctx, &domain.Account{
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Str("account_id", created.ID).Str("role", string(role)).Msg("account registered")

	view := created.View()
	return &view, nil
}

// Login verifies credentials, applies the lockout policy and issues a token
// pair. Unknown identifiers and wrong passwords are indistinguishable to the
// caller; only a lock is reported separately.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*ports.LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, domain.NewValidationError("email/username and password are required")
	}

	acct, err := s.findForLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	now := s.now()
	if err := s.policy.CheckLoginAllowed(acct.LoginState, now); err != nil {
		s.log.Info().Str("account_id", acct.ID).Msg("login rejected: account locked")
		return nil, err
	}

	if !s.hasher.Verify(password, acct.PasswordHash) {
		if err := s.recordFailure(ctx, acct, now); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return nil, domain.ErrInvalidCredentials
	}

	if acct.Blocked || !acct.Active {
		return nil, domain.ErrAccountBlocked
	}

	pair, err := s.tokens.Issue(acct)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.repo.CompleteLogin(ctx, acct.ID, pair.RefreshToken, now); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info().Str("account_id", acct.ID).Msg("login succeeded")

	return &ports.LoginResult{
		Tokens: pair,
		Account: domain.AccountView{
			ID:       acct.ID,
			Username: acct.Username,
			Role:     acct.Role,
		},
	}, nil
}

// findForLogin resolves identifier against exactly one unique field.
func (s *AuthService) findForLogin(ctx context.Context, identifier string) (*domain.Account, error) {
	if domain.IsEmailIdentifier(identifier) {
		return s.repo.FindByEmail(ctx, identifier)
	}
	return s.repo.FindByUsername(ctx, identifier)
}

// recordFailure persists one more failed attempt with a compare-and-update on
// the stored counter, re-reading on a lost race.
func (s *AuthService) recordFailure(ctx context.Context, acct *domain.Account, now time.Time) error {
	current := acct.LoginState
	for attempt := 0; attempt < maxStateWriteAttempts; attempt++ {
		next := s.policy.RecordFailure(current, now)
		applied, err := s.repo.UpdateLoginState(ctx, acct.ID, current, next)
		if err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}
		if applied {
			if next.Locked(now) && !current.Locked(now) {
				s.log.Warn().
					Str("account_id", acct.ID).
					Int("attempts", next.FailedAttempts).
					Time("lock_until", *next.LockUntil).
					Msg("account locked after repeated failures")
			}
			return nil
		}

		fresh, err := s.repo.FindByID(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("record failed attempt: reload: %w", err)
		}
		current = fresh.LoginState
	}

	s.log.Warn().Str("account_id", acct.ID).Msg("failed-attempt counter not updated after concurrent writes")
	return nil
}

// Logout clears the stored refresh token. It is idempotent.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if err := s.repo.ClearRefreshToken(ctx, accountID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Str("account_id", accountID).Msg("logged out")
	return nil
}

// Refresh exchanges a live refresh token for a new pair and rotates the
// stored value so the presented token cannot be used again.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, error) {
	if presented == "" {
		return nil, domain.NewUnauthenticatedError("unauthorized request")
	}

	claims, err := s.tokens.Verify(presented, domain.RefreshToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	acct, err := s.repo.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if acct.Blocked || !acct.Active {
		return nil, domain.ErrAccountBlocked
	}

	pair, err := s.tokens.Issue(acct)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	swapped, err := s.repo.RotateRefreshToken(ctx, acct.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !swapped {
		s.log.Warn().Str("account_id", acct.ID).Msg("refresh token does not match stored token")
		return nil, domain.ErrInvalidToken
	}

	return &pair, nil
}
