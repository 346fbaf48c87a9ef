package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/edupaila/community-server-go/internal/config"
	"github.com/edupaila/community-server-go/internal/database"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/util"
)

// TxRunner runs fn inside a database transaction. *database.DB implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// PasscodeStore issues and looks up passcodes. At most one unused code exists
// per (owner, purpose); issuing a new one replaces the old.
type PasscodeStore struct {
	repo repository.PasscodeRepository
	tx   TxRunner
	now  func() time.Time
}

func NewPasscodeStore(repo repository.PasscodeRepository, tx TxRunner) *PasscodeStore {
	return &PasscodeStore{
		repo: repo,
		tx:   tx,
		now:  time.Now,
	}
}

// Issue generates a fresh code for owner and atomically replaces any unused
// code for the same purpose.
func (s *PasscodeStore) Issue(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	ttl time.Duration,
) (*model.Passcode, error) {
	owner = util.NormalizeAddress(owner)
	if owner == "" {
		return nil, apperrors.MissingRequired("owner")
	}

	code, err := util.GenerateNumericCode(config.PasscodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate passcode: %w", err)
	}

	var created *model.Passcode
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockOwner(ctx, owner, purpose); err != nil {
			return err
		}
		replaced, err := repo.DeleteUnused(ctx, owner, purpose)
		if err != nil {
			return err
		}
		created, err = repo.Create(ctx, model.CreatePasscodeParams{
			Owner:     owner,
			Code:      code,
			Purpose:   purpose,
			ExpiresAt: s.now().Add(ttl),
		})
		if err != nil {
			return err
		}
		if replaced > 0 {
			log.Debug().Str("owner", owner).Str("purpose", string(purpose)).Msg("replaced unused passcode")
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	log.Info().
		Str("owner", owner).
		Str("purpose", string(purpose)).
		Str("code", util.MaskCode(code)).
		Time("expiresAt", created.ExpiresAt).
		Msg("passcode issued")

	return created, nil
}

// Lookup returns the unused, unexpired code matching candidate, or nil.
// Non-digits in candidate are ignored.
func (s *PasscodeStore) Lookup(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	candidate string,
) (*model.Passcode, error) {
	p, err := s.Find(ctx, owner, purpose, candidate)
	if err != nil || p == nil {
		return nil, err
	}
	if p.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return p, nil
}

// Find is Lookup without the expiry filter.
func (s *PasscodeStore) Find(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	candidate string,
) (*model.Passcode, error) {
	owner = util.NormalizeAddress(owner)
	code := util.DigitsOnly(candidate)
	if owner == "" || code == "" {
		return nil, nil
	}

	p, err := s.repo.FindUnused(ctx, owner, purpose, code)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	return p, nil
}

// Consume marks p used. It reports false when p was already consumed, which
// is not an error.
func (s *PasscodeStore) Consume(ctx context.Context, p *model.Passcode) (bool, error) {
	consumed, err := s.repo.MarkUsed(ctx, p.ID)
	if err != nil {
		return false, apperrors.StorageUnavailable(err)
	}
	return consumed, nil
}

// Discard deletes p outright.
func (s *PasscodeStore) Discard(ctx context.Context, p *model.Passcode) error {
	if err := s.repo.Delete(ctx, p.ID); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}
