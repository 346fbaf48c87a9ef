package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/util"
)

// Verifier checks a submitted code and consumes it on success.
type Verifier struct {
	store *PasscodeStore
}

func NewVerifier(store *PasscodeStore) *Verifier {
	return &Verifier{store: store}
}

// Verify returns the consumed passcode, or an AppError with one of
// MISSING_REQUIRED, CODE_NOT_FOUND or CODE_EXPIRED. An expired match is
// deleted on the spot.
func (v *Verifier) Verify(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	code string,
) (*model.Passcode, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, apperrors.MissingRequired("owner")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.MissingRequired("code")
	}

	p, err := v.store.Find(ctx, owner, purpose, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.CodeNotFound()
	}

	if p.IsExpiredAt(v.store.now()) {
		if err := v.store.Discard(ctx, p); err != nil {
			log.Warn().Err(err).Str("passcodeId", p.ID).Msg("failed to delete expired passcode")
		}
		return nil, apperrors.CodeExpired()
	}

	consumed, err := v.store.Consume(ctx, p)
	if err != nil {
		return nil, err
	}
	if !consumed {
		// a concurrent request won the race
		return nil, apperrors.CodeNotFound()
	}

	log.Info().
		Str("owner", p.Owner).
		Str("purpose", string(p.Purpose)).
		Str("code", util.MaskCode(p.Code)).
		Msg("passcode verified")

	return p, nil
}
