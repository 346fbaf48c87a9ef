package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/model"
)

// PasscodeRepository handles passcode data operations
type PasscodeRepository interface {
	// LockOwner takes a transaction-scoped advisory lock for (owner, purpose).
	// Only meaningful on a repository bound to a transaction.
	LockOwner(ctx context.Context, owner string, purpose model.PasscodePurpose) error
	DeleteUnused(ctx context.Context, owner string, purpose model.PasscodePurpose) (int64, error)
	Create(ctx context.Context, params model.CreatePasscodeParams) (*model.Passcode, error)
	// FindUnused returns the newest unused passcode matching exactly, expired or not.
	FindUnused(ctx context.Context, owner string, purpose model.PasscodePurpose, code string) (*model.Passcode, error)
	// MarkUsed reports whether this call transitioned the record to used.
	MarkUsed(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	// DeleteStale removes expired passcodes and used ones older than usedBefore.
	DeleteStale(ctx context.Context, usedBefore time.Time) (int64, error)
	WithTx(tx *sqlx.Tx) PasscodeRepository
}

type passcodeRepo struct {
	db database.DBTX
}

// NewPasscodeRepository creates a new passcode repository
func NewPasscodeRepository(db *sqlx.DB) PasscodeRepository {
	return &passcodeRepo{db: db}
}

func (r *passcodeRepo) WithTx(tx *sqlx.Tx) PasscodeRepository {
	return &passcodeRepo{db: tx}
}

func (r *passcodeRepo) LockOwner(ctx context.Context, owner string, purpose model.PasscodePurpose) error {
	_, err := r.db.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1))
	`, string(purpose)+":"+owner)
	return err
}

func (r *passcodeRepo) DeleteUnused(ctx context.Context, owner string, purpose model.PasscodePurpose) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM passcodes
		WHERE owner = $1 AND purpose = $2 AND used_at IS NULL
	`, owner, purpose)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Create inserts a new passcode
func (r *passcodeRepo) Create(ctx context.Context, params model.CreatePasscodeParams) (*model.Passcode, error) {
	var passcode model.Passcode
	err := r.db.GetContext(ctx, &passcode, `
		INSERT INTO passcodes (owner, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.Owner, params.Code, params.Purpose, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &passcode, nil
}

func (r *passcodeRepo) FindUnused(ctx context.Context, owner string, purpose model.PasscodePurpose, code string) (*model.Passcode, error) {
	var passcode model.Passcode
	err := r.db.GetContext(ctx, &passcode, `
		SELECT * FROM passcodes
		WHERE owner = $1 AND purpose = $2 AND code = $3 AND used_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, owner, purpose, code)
	return HandleNotFound(&passcode, err)
}

func (r *passcodeRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE passcodes
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *passcodeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM passcodes WHERE id = $1
	`, id)
	return err
}

func (r *passcodeRepo) DeleteStale(ctx context.Context, usedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM passcodes
		WHERE expires_at < NOW() OR (used_at IS NOT NULL AND used_at < $1)
	`, usedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
