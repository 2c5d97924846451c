// Package account wraps the /user endpoints: sign-in, sign-up, profile, and
// the email verification and password reset flows.
package account

import (
	"context"
	"net/http"
	"strings"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/form"
	"teamdash/cmd/security/password"
)

// Doer sends API requests. *apiclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Service calls the account endpoints. Inputs are validated before any request.
type Service struct {
	api    Doer
	policy password.Policy
}

// NewService returns a Service using the default password policy.
func NewService(api Doer) *Service {
	return &Service{api: api, policy: password.DefaultPolicy()}
}

// WithPolicy returns a copy of s using policy for password checks.
func (s *Service) WithPolicy(policy password.Policy) *Service {
	cp := *s
	cp.policy = policy
	return &cp
}

// Login exchanges credentials for a token pair.
func (s *Service) Login(ctx context.Context, cr Credentials) (AuthResponse, error) {
	cr.Email = form.NormalizeEmail(cr.Email)
	if err := cr.Validate(); err != nil {
		return AuthResponse{}, err
	}

	var out AuthResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/user/login",
		Body:   cr,
		Public: true,
	}, &out)
	return out, err
}

// Register creates an account and returns its first token pair.
func (s *Service) Register(ctx context.Context, r Registration) (AuthResponse, error) {
	r.Email = form.NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if err := r.Validate(s.policy); err != nil {
		return AuthResponse{}, err
	}

	var out AuthResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/user/register",
		Body:   r,
		Public: true,
	}, &out)
	return out, err
}

// Me returns the signed-in user's profile.
func (s *Service) Me(ctx context.Context) (User, error) {
	var out User
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/user/me"}, &out)
	return out, err
}

// UpdateMe changes the given profile fields.
func (s *Service) UpdateMe(ctx context.Context, p ProfileUpdate) (User, error) {
	if p.Empty() {
		return User{}, ErrNoChanges
	}
	if err := p.Validate(); err != nil {
		return User{}, err
	}

	var out User
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   "/user/me",
		Body:   p,
	}, &out)
	return out, err
}

// VerifyEmail confirms an address with the emailed token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if err := validateToken(token); err != nil {
		return "", err
	}
	return s.message(ctx, "/user/verify-email", tokenRequest{Token: token})
}

// ResendVerification asks for a new verification email.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	email = form.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	return s.message(ctx, "/user/resend-verification", emailRequest{Email: email})
}

// ForgotPassword starts the password reset flow.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = form.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	return s.message(ctx, "/user/forgot-password", emailRequest{Email: email})
}

// ResetPassword sets a new password with the emailed token.
func (s *Service) ResetPassword(ctx context.Context, r PasswordReset) (string, error) {
	r.Token = strings.TrimSpace(r.Token)
	if err := r.Validate(s.policy); err != nil {
		return "", err
	}
	return s.message(ctx, "/user/reset-password", r)
}

func (s *Service) message(ctx context.Context, path string, body any) (string, error) {
	var out messageResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Public: true,
	}, &out)
	return out.Message, err
}
