package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByEmails(ctx context.Context, emails []string) ([]model.Account, error)
	ListEmailsByRole(ctx context.Context, role model.Role) ([]string, error)
	Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error)
	// UpsertVerified creates a member account or marks an existing one verified.
	// The role of an existing account is left untouched.
	UpsertVerified(ctx context.Context, email, displayName string) (*model.Account, error)
	// EnsureAdmin creates an admin account or promotes an existing one.
	EnsureAdmin(ctx context.Context, email, displayName string) (*model.Account, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

type accountRepo struct {
	db database.DBTX
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx}
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE email = $1
	`, email)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByEmails(ctx context.Context, emails []string) ([]model.Account, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	var accounts []model.Account
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts WHERE email = ANY($1)
	`, pq.Array(emails))
	return accounts, err
}

func (r *accountRepo) ListEmailsByRole(ctx context.Context, role model.Role) ([]string, error) {
	var emails []string
	err := r.db.SelectContext(ctx, &emails, `
		SELECT email FROM accounts
		WHERE role = $1
		ORDER BY email
	`, role)
	return emails, err
}

func (r *accountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error) {
	role := params.Role
	if role == "" {
		role = model.RoleUser
	}

	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (email, display_name, role, verified_at)
		VALUES ($1, $2, $3, CASE WHEN $4 THEN NOW() END)
		RETURNING *
	`, params.Email, params.DisplayName, role, params.Verified)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) UpsertVerified(ctx context.Context, email, displayName string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (email, display_name, role, verified_at)
		VALUES ($1, $2, 'user', NOW())
		ON CONFLICT (email) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE accounts.display_name END,
			verified_at = COALESCE(accounts.verified_at, NOW()),
			updated_at = NOW()
		RETURNING *
	`, email, displayName)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) EnsureAdmin(ctx context.Context, email, displayName string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (email, display_name, role, verified_at)
		VALUES ($1, $2, 'admin', NOW())
		ON CONFLICT (email) DO UPDATE SET
			role = 'admin',
			updated_at = NOW()
		RETURNING *
	`, email, displayName)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
