package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edupaila/community-server-go/internal/audit"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/middleware"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/service"
	"github.com/edupaila/community-server-go/internal/util"
)

// OTPFlows is satisfied by *service.OTPService.
type OTPFlows interface {
	CodeTTL() time.Duration
	RequestAdminCode(ctx context.Context, owner string) (*model.Passcode, error)
	VerifyAdminCode(ctx context.Context, owner, code string) (*service.Session, error)
	RequestLoginCode(ctx context.Context, owner string) (*model.Passcode, error)
	VerifyLoginCode(ctx context.Context, owner, code string) (*service.Session, error)
	RequestRegistrationCode(ctx context.Context, owner, name string) (*model.Passcode, error)
	VerifyRegistrationCode(ctx context.Context, owner, code, displayName string) (*model.Account, error)
}

type ownerRequest struct {
	Owner string `json:"owner" validate:"required,max=254"`
}

type verifyRequest struct {
	Owner string `json:"owner" validate:"required,max=254"`
	Code  string `json:"code" validate:"required,max=32"`
}

type registerRequest struct {
	Owner string `json:"owner" validate:"required,max=254"`
	Name  string `json:"name" validate:"required,max=100"`
}

type registerVerifyRequest struct {
	Owner string `json:"owner" validate:"required,max=254"`
	Code  string `json:"code" validate:"required,max=32"`
	Name  string `json:"name" validate:"required,max=100"`
}

type OTPHandler struct {
	otp           OTPFlows
	verifyLimiter *middleware.VerifyAttemptLimiter
}

func NewOTPHandler(otp OTPFlows, verifyLimiter *middleware.VerifyAttemptLimiter) *OTPHandler {
	if verifyLimiter == nil {
		verifyLimiter = middleware.NewVerifyAttemptLimiter(0, 0)
	}
	return &OTPHandler{otp: otp, verifyLimiter: verifyLimiter}
}

// AdminRoutes serves the admin passcode login under /otp.
func (h *OTPHandler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/request", h.RequestAdminCode)
	r.With(h.verifyLimiter.Handler).Post("/verify", h.VerifyAdminCode)
	return r
}

// MemberRoutes serves member login and registration under /auth.
func (h *OTPHandler) MemberRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login/request", h.RequestLoginCode)
	r.With(h.verifyLimiter.Handler).Post("/login/verify", h.VerifyLoginCode)
	r.Post("/register/request", h.RequestRegistrationCode)
	r.With(h.verifyLimiter.Handler).Post("/register/verify", h.VerifyRegistrationCode)
	return r
}

func (h *OTPHandler) RequestAdminCode(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	_, err := h.otp.RequestAdminCode(r.Context(), req.Owner)
	h.auditRequest(r, req.Owner, model.PurposeAdminLogin, err)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeCodeSent(w, "OTP sent")
}

func (h *OTPHandler) VerifyAdminCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.otp.VerifyAdminCode(r.Context(), req.Owner, req.Code)
	h.auditVerify(r, req.Owner, model.PurposeAdminLogin, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Verified",
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *OTPHandler) RequestLoginCode(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	_, err := h.otp.RequestLoginCode(r.Context(), req.Owner)
	h.auditRequest(r, req.Owner, model.PurposeLogin, err)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeCodeSent(w, "Login code sent")
}

func (h *OTPHandler) VerifyLoginCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.otp.VerifyLoginCode(r.Context(), req.Owner, req.Code)
	h.auditVerify(r, req.Owner, model.PurposeLogin, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Logged in",
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.Format(time.RFC3339),
		"user":      formatAccount(session.Account),
	})
}

func (h *OTPHandler) RequestRegistrationCode(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	_, err := h.otp.RequestRegistrationCode(r.Context(), req.Owner, req.Name)
	h.auditRequest(r, req.Owner, model.PurposeRegistration, err)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeCodeSent(w, "Verification code sent")
}

func (h *OTPHandler) VerifyRegistrationCode(w http.ResponseWriter, r *http.Request) {
	var req registerVerifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.otp.VerifyRegistrationCode(r.Context(), req.Owner, req.Code, req.Name)
	h.auditVerify(r, req.Owner, model.PurposeRegistration, err)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAccountVerified,
		Owner:     account.Email,
		AccountID: account.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Email verified",
		"verified": true,
		"user":     formatAccount(account),
	})
}

func (h *OTPHandler) writeCodeSent(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"expiresIn": int(h.otp.CodeTTL().Seconds()),
	})
}

func (h *OTPHandler) auditRequest(r *http.Request, owner string, purpose model.PasscodePurpose, err error) {
	details := map[string]any{"purpose": string(purpose), "success": err == nil}
	if err != nil {
		details["code"] = string(apperrors.GetCode(err))
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventOTPRequest,
		Owner:   util.NormalizeAddress(owner),
		Details: details,
	})
}

func (h *OTPHandler) auditVerify(r *http.Request, owner string, purpose model.PasscodePurpose, err error) {
	event := audit.Event{
		Type:    audit.EventOTPVerifySuccess,
		Owner:   util.NormalizeAddress(owner),
		Details: map[string]any{"purpose": string(purpose)},
	}
	if err != nil {
		event.Type = audit.EventOTPVerifyFailure
		event.Details["code"] = string(apperrors.GetCode(err))
	}
	audit.LogFromRequest(r, event)
}
