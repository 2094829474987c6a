package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tunehub/music-api/internal/core/domain"
)

const collectionAccounts = "accounts"

// AccountRepository implements ports.AccountRepository on MongoDB.
type AccountRepository struct {
	col *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{col: db.Collection(collectionAccounts)}
}

type mongoAccount struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	Username      string             `bson:"username"`
	Email         string             `bson:"email"`
	PasswordHash  string             `bson:"password_hash,omitempty"`
	Role          string             `bson:"role"`
	Active        bool               `bson:"is_active"`
	Blocked       bool               `bson:"is_blocked"`
	LoginAttempts int                `bson:"login_attempts"`
	LockUntil     *time.Time         `bson:"lock_until"`
	RefreshToken  string             `bson:"refresh_token,omitempty"`
	LastLoginAt   *time.Time         `bson:"last_login_at,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

// guardProjection drops secrets from reads made on behalf of the access guard.
var guardProjection = bson.M{"password_hash": 0, "refresh_token": 0}

func (m *mongoAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:           m.ID.Hex(),
		Name:         m.Name,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		Active:       m.Active,
		Blocked:      m.Blocked,
		RefreshToken: m.RefreshToken,
		LastLoginAt:  utcPtr(m.LastLoginAt),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		LoginState: domain.LoginState{
			FailedAttempts: m.LoginAttempts,
			LockUntil:      utcPtr(m.LockUntil),
		},
	}
}

// Create inserts a new account document.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoAccount{
		Name:         a.Name,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		Active:       a.Active,
		Blocked:      a.Blocked,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	created := doc.toDomain()
	created.PasswordHash = ""
	return created, nil
}

// FindByUsername matches username exactly.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// FindByEmail matches the normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoAccount
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByID returns the account without password hash or refresh token.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoAccount
	opts := options.FindOne().SetProjection(guardProjection)
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return doc.toDomain(), nil
}

// UpdateLoginState is a compare-and-update on login_attempts.
func (r *AccountRepository) UpdateLoginState(ctx context.Context, id string, expected, next domain.LoginState) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": oid, "login_attempts": expected.FailedAttempts}
	update := bson.M{"$set": bson.M{
		"login_attempts": next.FailedAttempts,
		"lock_until":     next.LockUntil,
		"updated_at":     time.Now().UTC(),
	}}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("update login state: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// CompleteLogin resets lockout state, stores the refresh token and stamps the
// login time in one write.
func (r *AccountRepository) CompleteLogin(ctx context.Context, id, refreshToken string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"login_attempts": 0,
		"lock_until":     nil,
		"refresh_token":  refreshToken,
		"last_login_at":  at.UTC(),
		"updated_at":     at.UTC(),
	}}

	res, err := r.col.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("complete login: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// RotateRefreshToken swaps the stored token only if it equals presented.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil || presented == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": oid, "refresh_token": presented}
	update := bson.M{"$set": bson.M{
		"refresh_token": next,
		"updated_at":    time.Now().UTC(),
	}}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ClearRefreshToken unsets the stored refresh token.
func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{
		"$unset": bson.M{"refresh_token": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := r.col.UpdateByID(ctx, oid, update); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique indexes backing registration conflicts.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
