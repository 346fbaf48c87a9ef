package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edupaila/community-server-go/internal/audit"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/token"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

func GetIdentity(ctx context.Context) *token.Identity {
	if id, ok := ctx.Value(IdentityContextKey).(*token.Identity); ok {
		return id
	}
	return nil
}

// WithIdentity is used by tests and by handlers that authenticate inline.
func WithIdentity(ctx context.Context, id *token.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// TokenValidator is satisfied by *token.Issuer.
type TokenValidator interface {
	Validate(raw string) (*token.Identity, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler accepts any valid session token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return m.require("", next)
}

// RequireAdmin accepts only tokens minted for an admin account.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.require(model.RoleAdmin, next)
}

func (m *AuthMiddleware) require(role model.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			m.reject(w, r, apperrors.Unauthorized("Missing authentication token"), "missing_token")
			return
		}

		id, err := m.tokens.Validate(raw)
		if err != nil {
			appErr, ok := apperrors.AsAppError(err)
			if !ok {
				log.Error().Err(err).Msg("auth middleware: token validation error")
				appErr = apperrors.InvalidToken("Invalid token")
			}
			m.reject(w, r, appErr, "invalid_token")
			return
		}

		if role != "" && id.Role != role {
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventAuthFailure,
				Owner:     id.OwnerAddress,
				AccountID: id.OwnerID,
				Details:   map[string]any{"reason": "insufficient_role", "path": r.URL.Path},
			})
			writeError(w, apperrors.Forbidden("Admin access required"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err *apperrors.AppError, reason string) {
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAuthFailure,
		Details: map[string]any{"reason": reason, "path": r.URL.Path},
	})
	writeError(w, err)
}

// extractToken looks at the Authorization header, then the token query
// parameter (EventSource cannot set headers), then a "token" field in a JSON
// body. The body is restored for the next handler.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return tokenFromBody(r)
}

func tokenFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return ""
	}

	body, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Token)
}
