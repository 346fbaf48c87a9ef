package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edupaila/community-server-go/internal/audit"
	"github.com/edupaila/community-server-go/internal/database"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/mailer"
	"github.com/edupaila/community-server-go/internal/metrics"
	"github.com/edupaila/community-server-go/internal/model"
	redisclient "github.com/edupaila/community-server-go/internal/redis"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/token"
	"github.com/edupaila/community-server-go/internal/util"
)

// Mailer is satisfied by *mailer.Gateway.
type Mailer interface {
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// TokenIssuer is satisfied by *token.Issuer.
type TokenIssuer interface {
	Issue(id token.Identity) (string, time.Time, error)
}

// RequestLimiter is satisfied by *RateLimiter.
type RequestLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

type OTPConfig struct {
	CodeTTL                time.Duration
	AllowAdminSelfRegister bool
	RequestLimit           int
	RequestWindow          time.Duration
}

// Session is the result of a successful passcode login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   *model.Account
}

// OTPService runs the passcode flows: admin login, member login and
// registration.
type OTPService struct {
	accounts repository.AccountRepository
	store    *PasscodeStore
	verifier *Verifier
	mailer   Mailer
	tokens   TokenIssuer
	limiter  RequestLimiter
	cfg      OTPConfig
}

func NewOTPService(
	accounts repository.AccountRepository,
	store *PasscodeStore,
	mailer Mailer,
	tokens TokenIssuer,
	limiter RequestLimiter,
	cfg OTPConfig,
) *OTPService {
	return &OTPService{
		accounts: accounts,
		store:    store,
		verifier: NewVerifier(store),
		mailer:   mailer,
		tokens:   tokens,
		limiter:  limiter,
		cfg:      cfg,
	}
}

func (s *OTPService) CodeTTL() time.Duration {
	return s.cfg.CodeTTL
}

// RequestAdminCode emails an admin login code. Unknown addresses get
// NOT_FOUND unless admin self-registration is enabled, in which case the
// admin account is created first.
func (s *OTPService) RequestAdminCode(ctx context.Context, owner string) (*model.Passcode, error) {
	return s.request(ctx, owner, model.PurposeAdminLogin, func(owner string) (string, error) {
		account, err := s.accounts.FindByEmail(ctx, owner)
		if err != nil {
			return "", apperrors.StorageUnavailable(err)
		}
		if account != nil {
			if !account.IsAdmin() {
				return "", apperrors.NotFound("Admin")
			}
			return account.DisplayName, nil
		}
		if !s.cfg.AllowAdminSelfRegister {
			return "", apperrors.NotFound("Admin")
		}

		name := util.LocalPart(owner)
		created, err := s.accounts.Create(ctx, model.CreateAccountParams{
			Email:       owner,
			DisplayName: name,
			Role:        model.RoleAdmin,
		})
		if database.IsUniqueViolation(err) {
			// a concurrent request registered the same address first
			return name, nil
		}
		if err != nil {
			return "", apperrors.StorageUnavailable(err)
		}

		log.Warn().Str("owner", owner).Str("accountId", created.ID).Msg("admin account self-registered")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventAdminBootstrap,
			Owner:     owner,
			AccountID: created.ID,
			Details:   map[string]any{"source": "self_register"},
		})
		return name, nil
	})
}

// RequestLoginCode emails a member login code to an existing account.
func (s *OTPService) RequestLoginCode(ctx context.Context, owner string) (*model.Passcode, error) {
	return s.request(ctx, owner, model.PurposeLogin, func(owner string) (string, error) {
		account, err := s.accounts.FindByEmail(ctx, owner)
		if err != nil {
			return "", apperrors.StorageUnavailable(err)
		}
		if account == nil {
			return "", apperrors.NotFound("Account")
		}
		return account.DisplayName, nil
	})
}

// RequestRegistrationCode emails a code proving ownership of the address,
// greeting the new member by name. No account is needed yet.
func (s *OTPService) RequestRegistrationCode(ctx context.Context, owner, name string) (*model.Passcode, error) {
	return s.request(ctx, owner, model.PurposeRegistration, func(string) (string, error) {
		return name, nil
	})
}

func (s *OTPService) request(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	policy func(owner string) (name string, err error),
) (*model.Passcode, error) {
	owner = util.NormalizeAddress(owner)
	if owner == "" {
		return nil, apperrors.MissingRequired("owner")
	}
	if !util.IsEmailLike(owner) {
		return nil, apperrors.InvalidInput("owner", "must be an email address")
	}

	if s.limiter != nil && s.cfg.RequestLimit > 0 {
		key := redisclient.OTPRequestKey(string(purpose), util.HashToken(owner))
		allowed, resetAt := s.limiter.CheckLimit(ctx, key, s.cfg.RequestLimit, s.cfg.RequestWindow)
		if !allowed {
			metrics.PasscodeRequestsRejected.WithLabelValues(string(purpose), "rate_limited").Inc()
			return nil, apperrors.RateLimitExceeded().WithDetails(map[string]any{
				"retryAfter": int(time.Until(resetAt).Seconds()) + 1,
			})
		}
	}

	name, err := policy(owner)
	if err != nil {
		metrics.PasscodeRequestsRejected.WithLabelValues(string(purpose), string(apperrors.GetCode(err))).Inc()
		return nil, err
	}

	if err := s.mailer.Verify(ctx); err != nil {
		metrics.PasscodeRequestsRejected.WithLabelValues(string(purpose), "mailer_unavailable").Inc()
		return nil, err
	}

	p, err := s.store.Issue(ctx, owner, purpose, s.cfg.CodeTTL)
	if err != nil {
		return nil, err
	}

	subject, html, err := mailer.RenderPasscode(purpose, name, p.Code, s.cfg.CodeTTL)
	if err != nil {
		return nil, apperrors.Internal("Failed to render email").WithCause(err)
	}

	if _, err := s.mailer.Send(ctx, mailer.Message{To: owner, Subject: subject, HTML: html}); err != nil {
		// the owner never received this code
		if dErr := s.store.Discard(ctx, p); dErr != nil {
			log.Warn().Err(dErr).Str("passcodeId", p.ID).Msg("failed to discard undelivered passcode")
		}
		log.Error().Err(err).Str("owner", owner).Str("purpose", string(purpose)).Msg("failed to email passcode")
		return nil, err
	}

	metrics.PasscodesIssued.WithLabelValues(string(purpose)).Inc()
	return p, nil
}

// VerifyAdminCode consumes an admin login code and mints a session token.
func (s *OTPService) VerifyAdminCode(ctx context.Context, owner, code string) (*Session, error) {
	p, err := s.verify(ctx, owner, model.PurposeAdminLogin, code)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, p.Owner)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	if account == nil || !account.IsAdmin() {
		log.Warn().Str("owner", p.Owner).Msg("admin code verified for a non-admin account")
		return nil, apperrors.InvalidCode()
	}

	return s.session(account)
}

// VerifyLoginCode consumes a member login code and mints a session token.
func (s *OTPService) VerifyLoginCode(ctx context.Context, owner, code string) (*Session, error) {
	p, err := s.verify(ctx, owner, model.PurposeLogin, code)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, p.Owner)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	if account == nil {
		return nil, apperrors.InvalidCode()
	}

	return s.session(account)
}

// VerifyRegistrationCode consumes a registration code and marks the owner's
// account verified, creating it with displayName if needed.
func (s *OTPService) VerifyRegistrationCode(ctx context.Context, owner, code, displayName string) (*model.Account, error) {
	p, err := s.verify(ctx, owner, model.PurposeRegistration, code)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.UpsertVerified(ctx, p.Owner, displayName)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	log.Info().Str("owner", p.Owner).Str("accountId", account.ID).Msg("account verified")
	return account, nil
}

// verify maps the internal not-found and expired reasons onto the single
// INVALID_CODE answer.
func (s *OTPService) verify(
	ctx context.Context,
	owner string,
	purpose model.PasscodePurpose,
	code string,
) (*model.Passcode, error) {
	p, err := s.verifier.Verify(ctx, owner, purpose, code)
	if err == nil {
		metrics.PasscodeVerifications.WithLabelValues(string(purpose), metrics.ResultSuccess).Inc()
		return p, nil
	}

	reason := apperrors.GetCode(err)
	metrics.PasscodeVerifications.WithLabelValues(string(purpose), string(reason)).Inc()

	switch reason {
	case apperrors.ErrCodeCodeNotFound, apperrors.ErrCodeCodeExpired:
		log.Info().
			Str("owner", util.NormalizeAddress(owner)).
			Str("purpose", string(purpose)).
			Str("reason", string(reason)).
			Msg("passcode rejected")
		return nil, apperrors.InvalidCode().WithCause(err)
	default:
		return nil, err
	}
}

func (s *OTPService) session(account *model.Account) (*Session, error) {
	signed, expiresAt, err := s.tokens.Issue(token.Identity{
		OwnerID:      account.ID,
		OwnerAddress: account.Email,
		Role:         account.Role,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to issue token").WithCause(err)
	}

	return &Session{Token: signed, ExpiresAt: expiresAt, Account: account}, nil
}
