package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/infrastructure/mailer"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
	"github.com/yourorg/reviewflow/internal/security/auth"
)

const invitationLifetime = 7 * 24 * time.Hour

// InvitationService creates, delivers and revokes user invitations.
// Creating an invitation and emailing it is all-or-nothing: if the email
// cannot be delivered the stored invitation is removed again, so no
// pending row exists that the invitee never heard about.
type InvitationService struct {
	invitationRepo domain.InvitationRepository
	tenantRepo     domain.TenantRepository
	mail           mailer.Sender
	frontendURL    string
	logger         *slog.Logger
}

// NewInvitationService creates a new invitation service
func NewInvitationService(invitationRepo domain.InvitationRepository, tenantRepo domain.TenantRepository, mail mailer.Sender, frontendURL string, logger *slog.Logger) *InvitationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		invitationRepo: invitationRepo,
		tenantRepo:     tenantRepo,
		mail:           mail,
		frontendURL:    frontendURL,
		logger:         logger,
	}
}

// Invite stores an invitation and emails the signup link. Tenant admins
// invite into their own tenant; super admins must name the tenant.
func (s *InvitationService) Invite(ctx context.Context, scope domain.Scope, tenantID, email string, role domain.Role) (*domain.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}
	if role != domain.RoleUser && role != domain.RoleTenantAdmin {
		return nil, fmt.Errorf("cannot invite with role %q", role)
	}

	tenant, err := s.tenantRepo.GetByID(scope, tenantID)
	if err != nil {
		return nil, err
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Email:     email,
		Role:      role,
		Token:     token,
		ExpiresAt: time.Now().Add(invitationLifetime),
		CreatedBy: scope.UserID,
	}
	if err := s.invitationRepo.Create(scope, inv); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("a pending invitation for %s already exists: %w", email, domain.ErrDuplicate)
		}
		return nil, err
	}

	if err := s.sendInviteEmail(ctx, tenant, inv); err != nil {
		// Roll the invitation back so the pending row does not block a
		// retry after the mail provider recovers.
		if delErr := s.invitationRepo.Delete(scope, inv.ID); delErr != nil {
			s.logger.Error("failed to roll back invitation after email failure",
				slog.String("invitation_id", inv.ID),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("invitation email failed",
			slog.String("tenant_id", tenant.ID),
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		metrics.IncInvitations("email_failed")
		return nil, errors.New("failed to send invitation email")
	}

	metrics.IncInvitations("sent")
	s.logger.Info("invitation sent",
		slog.String("tenant_id", tenant.ID),
		slog.String("invitation_id", inv.ID),
		slog.String("role", string(role)),
	)
	return inv, nil
}

// List returns a tenant's invitations, pending and used.
func (s *InvitationService) List(scope domain.Scope, tenantID string) ([]*domain.Invitation, error) {
	return s.invitationRepo.ListByTenant(scope, tenantID)
}

// Revoke deletes a pending invitation.
func (s *InvitationService) Revoke(scope domain.Scope, id string) error {
	return s.invitationRepo.Delete(scope, id)
}

// Lookup resolves an invitation token for the signup page. Expired or used
// invitations come back as ErrInvitationInvalid so the page can say why.
func (s *InvitationService) Lookup(token string) (*domain.Invitation, error) {
	inv, err := s.invitationRepo.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if !inv.Valid(time.Now()) {
		return nil, domain.ErrInvitationInvalid
	}
	return inv, nil
}

func (s *InvitationService) signupURL(inv *domain.Invitation) string {
	q := url.Values{}
	q.Set("invite", inv.Token)
	q.Set("email", inv.Email)
	return s.frontendURL + "/signup?" + q.Encode()
}

func (s *InvitationService) sendInviteEmail(ctx context.Context, tenant *domain.Tenant, inv *domain.Invitation) error {
	link := s.signupURL(inv)
	body := fmt.Sprintf(
		`<p>You have been invited to join <strong>%s</strong>.</p>
<p><a href="%s">Accept the invitation</a> to create your account.</p>
<p>The invitation expires on %s.</p>`,
		html.EscapeString(tenant.Name),
		link,
		inv.ExpiresAt.Format("January 2, 2006"),
	)
	return s.mail.Send(ctx, &mailer.Message{
		To:      []string{inv.Email},
		Subject: fmt.Sprintf("You're invited to %s", tenant.Name),
		HTML:    body,
	})
}
