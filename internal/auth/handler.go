package auth

import (
	"net/http"
	"strings"

	"github.com/solistry/auth-service/internal/identity"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Init issues an anonymous session, optionally upgrading it with a verified
// device attestation.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	var body initRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	resp, err := h.service.Init(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Signup(r.Context(), body); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OTPSentResponse{Message: "verification code sent"})
}

func (h *Handler) SignupVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFromContext(r.Context()); !ok {
		writeServiceError(w, ErrAuthRequired)
		return
	}

	var body signupVerifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" || !validPassword(body.Password) {
		writeServiceError(w, ErrValidation)
		return
	}

	resp, err := h.service.SignupVerify(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if !body.IsOtpLogin && body.Password == "" {
		writeServiceError(w, ErrValidation)
		return
	}

	resp, otpSent, err := h.service.Login(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if otpSent {
		writeJSON(w, http.StatusOK, OTPSentResponse{Message: "verification code sent"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	var body loginVerifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeServiceError(w, ErrValidation)
		return
	}

	resp, err := h.service.LoginVerify(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeServiceError(w, ErrValidation)
		return
	}

	resp, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeServiceError(w, ErrAuthRequired)
		return
	}

	var body logoutRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), principal, strings.TrimSpace(body.RefreshToken)); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeServiceError(w, ErrAuthRequired)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		UserID:    principal.UserID,
		Role:      principal.Role,
		Anonymous: principal.Anonymous,
	})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OTPSentResponse{Message: "verification code sent"})
}

func (h *Handler) ForgotPasswordVerify(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordVerifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeServiceError(w, ErrValidation)
		return
	}

	ticket, err := h.service.ForgotPasswordVerify(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reset_token": ticket})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ResetToken == "" || !validPassword(body.NewPassword) {
		writeServiceError(w, ErrValidation)
		return
	}

	if err := h.service.ResetPassword(r.Context(), body); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	h.social(w, r, identity.ProviderGoogle)
}

func (h *Handler) Apple(w http.ResponseWriter, r *http.Request) {
	h.social(w, r, identity.ProviderApple)
}

func (h *Handler) social(w http.ResponseWriter, r *http.Request, provider string) {
	var body socialRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	resp, err := h.service.Social(r.Context(), provider, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Suspended serves the restricted support flow for suspended accounts.
func (h *Handler) Suspended(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "suspended",
		"message": "this account is suspended; contact support to appeal",
		"contact": "support@solistry.app",
	})
}

// validPassword bounds candidate passwords. The upper bound is bcrypt's
// 72-byte input limit; anything longer fails inside the hasher.
func validPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 72
}
