// Package auth is the session orchestrator: the state machine that turns an
// unauthenticated HTTP request into a verified, rate-limited,
// replay-protected, role-aware session.
//
// The orchestrator is stateless per request. All shared state lives in Redis
// (OTP records, replay markers, rate buckets, sessions) and Postgres
// (profiles); every security-relevant mutation is a single atomic store
// operation performed by the leaf packages.
package auth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/solistry/auth-service/internal/identity"
	"github.com/solistry/auth-service/internal/messaging"
	"github.com/solistry/auth-service/internal/observability"
	"github.com/solistry/auth-service/internal/otp"
	"github.com/solistry/auth-service/internal/profile"
	"github.com/solistry/auth-service/internal/replay"
	"github.com/solistry/auth-service/internal/reset"
	"github.com/solistry/auth-service/internal/session"
	"github.com/solistry/auth-service/internal/token"
)

const (
	actionSuspended   = "suspended"
	suspendedRedirect = "/auth/suspended"
)

// Config holds orchestrator tuning parameters.
type Config struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

// Service coordinates the leaf components for each public endpoint.
type Service struct {
	profiles   profile.Store
	otp        *otp.Manager
	replay     *replay.Guard
	issuer     *token.Issuer
	sessions   *session.Store
	resets     *reset.Store
	dispatcher *messaging.Dispatcher
	identity   identity.Verifier
	logger     *observability.Logger
	config     Config
}

func NewService(
	profiles profile.Store,
	otpManager *otp.Manager,
	replayGuard *replay.Guard,
	issuer *token.Issuer,
	sessions *session.Store,
	resets *reset.Store,
	dispatcher *messaging.Dispatcher,
	verifier identity.Verifier,
	logger *observability.Logger,
	cfg Config,
) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 60 * 24 * time.Hour
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	return &Service{
		profiles:   profiles,
		otp:        otpManager,
		replay:     replayGuard,
		issuer:     issuer,
		sessions:   sessions,
		resets:     resets,
		dispatcher: dispatcher,
		identity:   verifier,
		logger:     logger,
		config:     cfg,
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// effectiveRole derives the token role from the freshly read profile. This
// runs at every issuance and at every refresh; the role is never read from
// client input.
func effectiveRole(user *profile.User) string {
	if user.Role == token.RoleAdmin {
		return token.RoleAdmin
	}
	if user.Verified {
		return token.RoleCreator
	}
	return token.RoleNormal
}

// statusGate maps account status to the flow decision. Suspended accounts
// deliberately pass with an action flag: they still receive tokens so the
// client can route them to the restricted support flow instead of a dead end.
func statusGate(status profile.Status) (actionRequired string, err error) {
	switch status {
	case profile.StatusDeleted:
		return "", ErrAccountDeleted
	case profile.StatusPending:
		return "", ErrAccountPending
	case profile.StatusSuspended:
		return actionSuspended, nil
	default:
		return "", nil
	}
}

// newAnonymousID synthesizes a numeric principal id outside the positive
// space used by profile rows.
func newAnonymousID() int64 {
	u := uuid.New()
	n := int64(binary.BigEndian.Uint64(u[:8]) >> 1)
	if n == 0 {
		n = 1
	}
	return -n
}

// issueTokens mints an access+refresh pair and records the session. A
// session write failure aborts the flow: a token that cannot be tracked must
// not be handed to the client.
func (s *Service) issueTokens(ctx context.Context, principal token.Principal, status profile.Status, device string) (*AuthResponse, error) {
	sid, err := token.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	secret, err := token.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	record := &session.Record{
		UserID:      principal.UserID,
		Role:        principal.Role,
		Status:      uint8(status),
		Device:      device,
		RefreshHash: token.HashRefreshSecret(secret),
		IssuedAt:    now.Unix(),
		LastSeenAt:  now.Unix(),
		ExpiresAt:   now.Add(s.config.RefreshTTL).Unix(),
	}

	saveCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.sessions.Save(saveCtx, sid.String(), record, s.config.RefreshTTL); err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccess(principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	refresh, err := token.EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &AuthResponse{
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		},
		UserID:    principal.UserID,
		Role:      principal.Role,
		Anonymous: principal.Anonymous,
	}, nil
}

func (s *Service) sendOTP(identifier string, channel messaging.Channel, code string) {
	s.dispatcher.Enqueue(messaging.Message{
		Channel:     channel,
		Destination: identifier,
		Code:        code,
	})
}

// Init issues an anonymous session. Clients with attestation capability must
// present a well-formed payload whose challenge passes the replay guard;
// clients without it fall back to a plain anonymous session.
func (s *Service) Init(ctx context.Context, req initRequest) (*AuthResponse, error) {
	anonymous := token.Principal{
		UserID:    newAnonymousID(),
		Role:      token.RoleAnonymous,
		Anonymous: true,
	}

	switch req.Capability {
	case capabilityUnsupportedFallback, capabilityNoAttestation:
		return s.issueTokens(ctx, anonymous, profile.StatusActive, "")
	}

	payload, ok := parseAttestation(req)
	if !ok {
		return nil, ErrAttestation
	}

	replayCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if !s.replay.Consume(replayCtx, payload.Challenge) {
		return nil, ErrAttestation
	}

	resp, err := s.issueTokens(ctx, anonymous, profile.StatusActive, "")
	if err != nil {
		return nil, err
	}
	resp.AppAttestVerified = true
	return resp, nil
}

// Signup starts registration: duplicate check, passcode generation, and
// fire-and-forget delivery.
func (s *Service) Signup(ctx context.Context, req signupRequest) error {
	identifier, channel, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return ErrValidation
	}

	existing, err := s.profiles.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if existing != nil && existing.Status != profile.StatusDeleted {
		return ErrDuplicateAccount
	}

	otpCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	code, err := s.otp.Generate(otpCtx, identifier, otp.PurposeSignup)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.sendOTP(identifier, channel, code)
	return nil
}

// SignupVerify completes registration: passcode check, profile creation, and
// first authenticated issuance.
func (s *Service) SignupVerify(ctx context.Context, req signupVerifyRequest) (*AuthResponse, error) {
	identifier, _, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return nil, ErrValidation
	}

	otpCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.otp.Verify(otpCtx, identifier, otp.PurposeSignup, req.Code); err != nil {
		return nil, mapOTPError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	user, err := s.profiles.Create(ctx, profile.CreateInput{
		Identifier:   identifier,
		Email:        req.Email,
		CountryCode:  req.CountryCode,
		PhoneNumber:  req.PhoneNumber,
		Name:         req.Name,
		PasswordHash: string(hash),
		Status:       profile.StatusActive,
	})
	if err != nil {
		if errors.Is(err, profile.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	principal := token.Principal{UserID: user.ID, Role: effectiveRole(user)}
	return s.issueTokens(ctx, principal, user.Status, req.Device)
}

// Login runs the password path. When the account uses a second factor, or
// the client requested an OTP login, a passcode is sent instead of tokens
// and otpSent reports true.
func (s *Service) Login(ctx context.Context, req loginRequest) (resp *AuthResponse, otpSent bool, err error) {
	identifier, channel, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return nil, false, ErrValidation
	}

	user, err := s.profiles.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, false, ErrInvalidCredentials
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	action, err := statusGate(user.Status)
	if err != nil {
		return nil, false, err
	}

	if req.IsOtpLogin {
		otpCtx, cancel := s.storeCtx(ctx)
		defer cancel()
		code, err := s.otp.Generate(otpCtx, identifier, otp.PurposeLogin)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.sendOTP(identifier, channel, code)
		return nil, true, nil
	}

	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, false, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		otpCtx, cancel := s.storeCtx(ctx)
		defer cancel()
		code, err := s.otp.Generate(otpCtx, identifier, otp.PurposeLogin)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.sendOTP(identifier, channel, code)
		return nil, true, nil
	}

	principal := token.Principal{UserID: user.ID, Role: effectiveRole(user)}
	resp, err = s.issueTokens(ctx, principal, user.Status, req.Device)
	if err != nil {
		return nil, false, err
	}
	applyAction(resp, action)
	return resp, false, nil
}

// LoginVerify completes an OTP login or a second-factor gate.
func (s *Service) LoginVerify(ctx context.Context, req loginVerifyRequest) (*AuthResponse, error) {
	identifier, _, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return nil, ErrValidation
	}

	user, err := s.profiles.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	otpCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.otp.Verify(otpCtx, identifier, otp.PurposeLogin, req.Code); err != nil {
		return nil, mapOTPError(err)
	}

	action, err := statusGate(user.Status)
	if err != nil {
		return nil, err
	}

	principal := token.Principal{UserID: user.ID, Role: effectiveRole(user)}
	resp, err := s.issueTokens(ctx, principal, user.Status, req.Device)
	if err != nil {
		return nil, err
	}
	applyAction(resp, action)
	return resp, nil
}

// Refresh rotates a refresh token. Validity is a two-phase check: the opaque
// token must decode, and the session store must hold a matching live record.
// The account-status gate re-runs against the current profile, so a user
// deleted or suspended after issuance is handled here, not just at login.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	sid, secret, err := token.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	nextSecret, err := token.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rotateCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	record, err := s.sessions.Rotate(
		rotateCtx,
		sid,
		token.HashRefreshSecret(secret),
		token.HashRefreshSecret(nextSecret),
		s.config.RefreshTTL,
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound),
			errors.Is(err, session.ErrReuse),
			errors.Is(err, session.ErrCorrupt):
			// Uniform rejection: callers cannot distinguish revoked, reused,
			// or never-issued tokens.
			return nil, ErrSessionRevoked
		default:
			return nil, err
		}
	}

	principal := token.Principal{
		UserID:    record.UserID,
		Role:      record.Role,
		Anonymous: record.Role == token.RoleAnonymous,
	}
	action := ""

	if !principal.Anonymous {
		user, err := s.profiles.FindByID(ctx, record.UserID)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				_ = s.sessions.Delete(rotateCtx, record.UserID, sid)
				return nil, ErrAccountDeleted
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		action, err = statusGate(user.Status)
		if err != nil {
			_ = s.sessions.Delete(rotateCtx, record.UserID, sid)
			return nil, err
		}
		principal.Role = effectiveRole(user)
	}

	access, err := s.issuer.IssueAccess(principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	refresh, err := token.EncodeRefreshToken(sid, nextSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp := &AuthResponse{
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		},
		UserID:    principal.UserID,
		Role:      principal.Role,
		Anonymous: principal.Anonymous,
	}
	applyAction(resp, action)
	return resp, nil
}

// Logout revokes one session when a refresh token is supplied, or every
// session for the caller otherwise.
func (s *Service) Logout(ctx context.Context, principal token.Principal, refreshToken string) error {
	logoutCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if refreshToken != "" {
		sid, _, err := token.DecodeRefreshToken(refreshToken)
		if err != nil {
			return ErrTokenInvalid
		}
		return s.sessions.Delete(logoutCtx, principal.UserID, sid)
	}

	_, err := s.sessions.DeleteAllForUser(logoutCtx, principal.UserID)
	return err
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the identifier exists, to resist enumeration.
func (s *Service) ForgotPassword(ctx context.Context, req forgotPasswordRequest) error {
	identifier, channel, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return ErrValidation
	}

	user, err := s.profiles.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if user.Status == profile.StatusDeleted {
		return nil
	}

	otpCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	code, err := s.otp.Generate(otpCtx, identifier, otp.PurposeReset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.sendOTP(identifier, channel, code)
	return nil
}

// ForgotPasswordVerify consumes the reset passcode and mints a single-use
// reset ticket.
func (s *Service) ForgotPasswordVerify(ctx context.Context, req forgotPasswordVerifyRequest) (string, error) {
	identifier, _, ok := identifierFrom(req.Email, req.CountryCode, req.PhoneNumber)
	if !ok {
		return "", ErrValidation
	}

	user, err := s.profiles.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	otpCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.otp.Verify(otpCtx, identifier, otp.PurposeReset, req.Code); err != nil {
		return "", mapOTPError(err)
	}

	ticket, err := s.resets.Issue(otpCtx, user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ticket, nil
}

// ResetPassword burns the reset ticket, stores the new hash, and revokes
// every session for the user.
func (s *Service) ResetPassword(ctx context.Context, req resetPasswordRequest) error {
	resetCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	userID, err := s.resets.Consume(resetCtx, req.ResetToken)
	if err != nil {
		switch {
		case errors.Is(err, reset.ErrNotFound), errors.Is(err, reset.ErrMismatch):
			return ErrTokenInvalid
		default:
			return err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.profiles.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := s.sessions.DeleteAllForUser(resetCtx, userID); err != nil {
		s.logger.Warn("reset_revoke_all_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return nil
}

// Social verifies an external identity token, finds or creates the matching
// profile, and issues tokens through the normal status gate.
func (s *Service) Social(ctx context.Context, provider string, req socialRequest) (*AuthResponse, error) {
	if req.ProviderToken == "" {
		return nil, ErrValidation
	}

	external, err := s.identity.Verify(ctx, provider, req.ProviderToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidProviderToken) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	user, err := s.profiles.FindOrCreateExternal(ctx, provider, external.Subject, external.Email, external.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	action, err := statusGate(user.Status)
	if err != nil {
		return nil, err
	}

	principal := token.Principal{UserID: user.ID, Role: effectiveRole(user)}
	resp, err := s.issueTokens(ctx, principal, user.Status, req.Device)
	if err != nil {
		return nil, err
	}
	applyAction(resp, action)
	return resp, nil
}

func applyAction(resp *AuthResponse, action string) {
	if action == "" {
		return
	}
	resp.ActionRequired = action
	resp.RedirectTo = suspendedRedirect
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, otp.ErrTooManyAttempts):
		return ErrTooManyAttempts
	case errors.Is(err, otp.ErrNotFound),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrInvalidCode):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
