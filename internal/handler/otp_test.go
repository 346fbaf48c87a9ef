package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/httputil"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/service"
)

type mockOTPFlows struct {
	mock.Mock
}

func (m *mockOTPFlows) CodeTTL() time.Duration {
	return 10 * time.Minute
}

func (m *mockOTPFlows) RequestAdminCode(ctx context.Context, owner string) (*model.Passcode, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Passcode), args.Error(1)
}

func (m *mockOTPFlows) VerifyAdminCode(ctx context.Context, owner, code string) (*service.Session, error) {
	args := m.Called(ctx, owner, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *mockOTPFlows) RequestLoginCode(ctx context.Context, owner string) (*model.Passcode, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Passcode), args.Error(1)
}

func (m *mockOTPFlows) VerifyLoginCode(ctx context.Context, owner, code string) (*service.Session, error) {
	args := m.Called(ctx, owner, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *mockOTPFlows) RequestRegistrationCode(ctx context.Context, owner, name string) (*model.Passcode, error) {
	args := m.Called(ctx, owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Passcode), args.Error(1)
}

func (m *mockOTPFlows) VerifyRegistrationCode(ctx context.Context, owner, code, displayName string) (*model.Account, error) {
	args := m.Called(ctx, owner, code, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func newOTPRouter(flows OTPFlows) http.Handler {
	h := NewOTPHandler(flows, nil)
	r := chi.NewRouter()
	r.Mount("/otp", h.AdminRoutes())
	r.Mount("/auth", h.MemberRoutes())
	return r
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestOTPHandler_RequestAdminCode(t *testing.T) {
	t.Run("sends a code", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("RequestAdminCode", mock.Anything, "admin@co.com").Return(&model.Passcode{ID: "p1"}, nil)

		rec := postJSON(t, newOTPRouter(flows), "/otp/request", `{"owner":"admin@co.com"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "OTP sent", body["message"])
		assert.EqualValues(t, 600, body["expiresIn"])
		assert.NotContains(t, rec.Body.String(), "p1")
	})

	t.Run("missing owner", func(t *testing.T) {
		flows := new(mockOTPFlows)

		rec := postJSON(t, newOTPRouter(flows), "/otp/request", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httputil.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.ErrCodeMissingRequired, resp.Code)
		assert.Contains(t, resp.Error, "owner")
		flows.AssertNotCalled(t, "RequestAdminCode", mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := postJSON(t, newOTPRouter(new(mockOTPFlows)), "/otp/request", `{"owner":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service errors map to status", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{apperrors.NotFound("Admin"), http.StatusNotFound},
			{apperrors.RateLimitExceeded(), http.StatusTooManyRequests},
			{apperrors.Configuration("SMTP is not configured", nil), http.StatusInternalServerError},
			{apperrors.Delivery(assert.AnError), http.StatusInternalServerError},
			{apperrors.StorageUnavailable(assert.AnError), http.StatusServiceUnavailable},
		}
		for _, tc := range cases {
			flows := new(mockOTPFlows)
			flows.On("RequestAdminCode", mock.Anything, "admin@co.com").Return(nil, tc.err)

			rec := postJSON(t, newOTPRouter(flows), "/otp/request", `{"owner":"admin@co.com"}`)
			assert.Equal(t, tc.status, rec.Code, apperrors.GetCode(tc.err))
		}
	})
}

func TestOTPHandler_VerifyAdminCode(t *testing.T) {
	t.Run("returns a token", func(t *testing.T) {
		flows := new(mockOTPFlows)
		expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		flows.On("VerifyAdminCode", mock.Anything, "admin@co.com", "123 456").
			Return(&service.Session{Token: "jwt", ExpiresAt: expires, Account: &model.Account{ID: "a"}}, nil)

		rec := postJSON(t, newOTPRouter(flows), "/otp/verify", `{"owner":"admin@co.com","code":"123 456"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Verified", body["message"])
		assert.Equal(t, "jwt", body["token"])
		assert.Equal(t, "2026-01-01T12:00:00Z", body["expiresAt"])
	})

	t.Run("invalid code", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("VerifyAdminCode", mock.Anything, "admin@co.com", "000000").
			Return(nil, apperrors.InvalidCode().WithCause(apperrors.CodeExpired()))

		rec := postJSON(t, newOTPRouter(flows), "/otp/verify", `{"owner":"admin@co.com","code":"000000"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httputil.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.ErrCodeInvalidCode, resp.Code)
		assert.Equal(t, "Invalid or expired code", resp.Error)
	})
}

func TestOTPHandler_MemberFlows(t *testing.T) {
	t.Run("login verify includes the user", func(t *testing.T) {
		flows := new(mockOTPFlows)
		account := &model.Account{ID: "acc-1", Email: "m@co.com", DisplayName: "Mia", Role: model.RoleUser}
		flows.On("VerifyLoginCode", mock.Anything, "m@co.com", "111111").
			Return(&service.Session{Token: "jwt", ExpiresAt: time.Now().Add(time.Hour), Account: account}, nil)

		rec := postJSON(t, newOTPRouter(flows), "/auth/login/verify", `{"owner":"m@co.com","code":"111111"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		user := decodeBody(t, rec)["user"].(map[string]any)
		assert.Equal(t, "m@co.com", user["email"])
		assert.Equal(t, "Mia", user["name"])
	})

	t.Run("login request for unknown account", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("RequestLoginCode", mock.Anything, "x@co.com").Return(nil, apperrors.NotFound("Account"))

		rec := postJSON(t, newOTPRouter(flows), "/auth/login/request", `{"owner":"x@co.com"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("registration request needs a name", func(t *testing.T) {
		flows := new(mockOTPFlows)

		rec := postJSON(t, newOTPRouter(flows), "/auth/register/request", `{"owner":"n@co.com"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "name")
	})

	t.Run("registration request passes the name on", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("RequestRegistrationCode", mock.Anything, "n@co.com", "Nova").
			Return(&model.Passcode{ID: "p-2", Owner: "n@co.com"}, nil)

		rec := postJSON(t, newOTPRouter(flows), "/auth/register/request", `{"owner":"n@co.com","name":"Nova"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		flows.AssertExpectations(t)
	})

	t.Run("registration verify", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("VerifyRegistrationCode", mock.Anything, "n@co.com", "222222", "Nova").
			Return(&model.Account{ID: "acc-2", Email: "n@co.com", DisplayName: "Nova", Role: model.RoleUser}, nil)

		rec := postJSON(t, newOTPRouter(flows), "/auth/register/verify", `{"owner":"n@co.com","code":"222222","name":"Nova"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["verified"])
	})

	t.Run("verify attempts are limited per ip", func(t *testing.T) {
		flows := new(mockOTPFlows)
		flows.On("VerifyLoginCode", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.InvalidCode())

		router := newOTPRouter(flows)
		var last int
		for i := 0; i < 11; i++ {
			last = postJSON(t, router, "/auth/login/verify", `{"owner":"m@co.com","code":"000000"}`).Code
		}
		assert.Equal(t, http.StatusTooManyRequests, last)
		flows.AssertNumberOfCalls(t, "VerifyLoginCode", 10)
	})
}
