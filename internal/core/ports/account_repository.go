package ports

import (
	"context"
	"time"

	"github.com/tunehub/music-api/internal/core/domain"
)

// AccountReader is the read side used by the access guard.
type AccountReader interface {
	// FindByID returns the account without its password hash or refresh token.
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

// AccountRepository defines persistence for accounts. Every mutation is a
// single atomic update keyed by account id.
type AccountRepository interface {
	AccountReader

	// Create inserts a new account. Uniqueness violations map to domain.ErrConflict.
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)

	// FindByUsername looks an account up by exact username, including the
	// password hash.
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)

	// FindByEmail looks an account up by normalized email, including the
	// password hash.
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)

	// UpdateLoginState replaces the lockout state only if the stored attempt
	// counter still equals expected.FailedAttempts. It reports whether the
	// write was applied.
	UpdateLoginState(ctx context.Context, id string, expected, next domain.LoginState) (bool, error)

	// CompleteLogin clears the lockout state, stores refreshToken and stamps
	// the last-login time in one write.
	CompleteLogin(ctx context.Context, id, refreshToken string, at time.Time) error

	// RotateRefreshToken swaps presented for next only if presented is the
	// stored value. It reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error)

	// ClearRefreshToken removes any stored refresh token. Clearing an account
	// without one is not an error.
	ClearRefreshToken(ctx context.Context, id string) error
}
