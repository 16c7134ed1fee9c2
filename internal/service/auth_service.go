package service

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 24 * time.Hour

// AuthService handles signup provisioning, login, and password changes.
type AuthService struct {
	profileRepo    domain.ProfileRepository
	invitationRepo domain.InvitationRepository
	tokens         *auth.TokenManager
	logger         *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	profileRepo domain.ProfileRepository,
	invitationRepo domain.InvitationRepository,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		profileRepo:    profileRepo,
		invitationRepo: invitationRepo,
		tokens:         tokens,
		logger:         logger,
	}
}

// SignupResult represents signup response
type SignupResult struct {
	UserID   string      `json:"user_id"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	TenantID string      `json:"tenant_id,omitempty"`
	Token    string      `json:"token"`
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	TenantID  string      `json:"tenant_id,omitempty"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Signup provisions a profile for a new identity. When a valid invitation
// matches (explicit token first, then newest pending invitation for the
// email) the profile takes the invitation's role and tenant and the
// invitation is consumed in the same transaction. Without one, the signup
// produces an orphan user profile with no tenant access.
//
// Provisioning is idempotent: retrying a signup for the same identity
// upserts instead of creating a second profile.
func (s *AuthService) Signup(email, password, fullName, inviteToken string) (*SignupResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if existing, err := s.profileRepo.GetByEmail(email); err == nil && existing != nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to sign up")
	}

	profile := &domain.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
	}

	inv := s.findInvitation(email, inviteToken)
	if inv != nil {
		profile.Role = inv.Role
		profile.TenantID = inv.TenantID
		if err := s.invitationRepo.ConsumeWithProfile(inv, profile); err != nil {
			if errors.Is(err, domain.ErrInvitationInvalid) {
				// Lost the race or the invitation lapsed mid-flight;
				// fall back to an orphan signup.
				s.logger.Warn("invitation no longer consumable",
					slog.String("email", email),
					slog.String("invitation_id", inv.ID),
				)
				profile.Role = domain.RoleUser
				profile.TenantID = ""
				inv = nil
			} else {
				s.logger.Error("failed to provision invited profile", slog.String("error", err.Error()))
				return nil, errors.New("failed to sign up")
			}
		}
	}
	if inv == nil {
		if err := s.profileRepo.Upsert(profile); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return nil, errors.New("email already registered")
			}
			s.logger.Error("failed to provision profile", slog.String("error", err.Error()))
			return nil, errors.New("failed to sign up")
		}
	}

	token, err := s.tokens.GenerateToken(profile, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to sign up")
	}

	s.logger.Info("user signed up",
		slog.String("user_id", profile.ID),
		slog.String("role", string(profile.Role)),
		slog.String("tenant_id", profile.TenantID),
	)

	return &SignupResult{
		UserID:   profile.ID,
		Email:    profile.Email,
		Role:     profile.Role,
		TenantID: profile.TenantID,
		Token:    token,
	}, nil
}

// findInvitation resolves an explicit invite token first and falls back to
// the newest pending invitation for the email. Token mismatch with the
// signup email is treated as no invitation.
func (s *AuthService) findInvitation(email, inviteToken string) *domain.Invitation {
	now := time.Now()
	if inviteToken != "" {
		inv, err := s.invitationRepo.GetByToken(inviteToken)
		if err == nil && inv.Valid(now) && strings.EqualFold(inv.Email, email) {
			return inv
		}
		return nil
	}
	inv, err := s.invitationRepo.GetPendingByEmail(email)
	if err != nil || !inv.Valid(now) {
		return nil
	}
	return inv
}

// IsSignupAllowed reports whether a pending, unexpired, unused invitation
// exists for the email. Expired-but-unused and used-but-unexpired both
// count as not allowed.
func (s *AuthService) IsSignupAllowed(email string) bool {
	inv, err := s.invitationRepo.GetPendingByEmail(email)
	if err != nil {
		return false
	}
	return inv.Valid(time.Now())
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	profile, err := s.profileRepo.GetByEmail(email)
	if err != nil {
		s.logger.Info("login attempt with unknown email", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}

	if !profile.IsActive {
		s.logger.Info("login attempt on deactivated account", slog.String("email", email))
		return nil, errors.New("account is deactivated")
	}

	token, err := s.tokens.GenerateToken(profile, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to log in")
	}

	s.logger.Info("user logged in",
		slog.String("user_id", profile.ID),
		slog.String("tenant_id", profile.TenantID),
	)

	return &LoginResult{
		UserID:    profile.ID,
		Email:     profile.Email,
		Role:      profile.Role,
		TenantID:  profile.TenantID,
		Token:     token,
		ExpiresAt: time.Now().Add(tokenLifetime),
	}, nil
}

// ChangePassword changes a user's password after verifying the current one
func (s *AuthService) ChangePassword(scope domain.Scope, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("new password must be at least 8 characters")
	}

	profile, err := s.profileRepo.GetByID(scope, scope.UserID)
	if err != nil {
		return errors.New("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(oldPassword)); err != nil {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	profile.PasswordHash = string(hash)
	if err := s.profileRepo.Update(scope, profile); err != nil {
		s.logger.Error("failed to update password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	s.logger.Info("user changed password", slog.String("user_id", scope.UserID))
	return nil
}
