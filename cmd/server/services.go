package main

import (
	"context"
	"time"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/websocket"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/email"
	"github.com/taskforge/api/pkg/jwt"
	"github.com/taskforge/api/pkg/logger"
)

// Services holds all service instances.
type Services struct {
	// Request scoping
	TenantContext *app.TenantContextService
	User          *app.UserService

	// Core domain
	Organization *app.OrganizationService
	Team         *app.TeamService
	Project      *app.ProjectService
	Task         *app.TaskService
	Invitation   *app.InvitationService
	Audit        *app.AuditService

	// Background work
	Email       *app.EmailService
	Maintenance *app.MaintenanceService

	// Shared infrastructure
	JWTGenerator *jwt.Generator
	WebSocketHub *websocket.Hub
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config        *config.Config
	Log           *logger.Logger
	Repos         *Repositories
	EmailEnqueuer app.EmailJobEnqueuer

	// Uploader may be nil when archive storage is disabled; audit
	// archiving then reports zero work instead of failing.
	Uploader app.AuditArchiveUploader
}

// NewServices creates all application services.
func NewServices(deps *ServiceDeps) *Services {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	s := &Services{}

	s.JWTGenerator = jwt.NewGenerator(jwt.TokenConfig{
		Secret:              cfg.Auth.JWTSecret,
		Issuer:              cfg.Auth.JWTIssuer,
		AccessTokenDuration: cfg.Auth.AccessTokenDuration,
	})

	// The hub fans committed changes out to organization, team and project
	// rooms. Services publish through it after their transaction commits.
	s.WebSocketHub = websocket.NewHub(cfg.Websocket, log)
	fanout := websocket.NewActivityFanout(s.WebSocketHub)

	s.TenantContext = app.NewTenantContextService(repos.Organization, repos.Team, repos.Project, log)
	s.WebSocketHub.SetAuthorizeFunc(subscriptionPolicy(s.TenantContext))

	s.User = app.NewUserService(repos.User, log)
	s.Audit = app.NewAuditService(repos.Audit, log)

	s.Organization = app.NewOrganizationService(
		repos.Organization, repos.Team, repos.Project, repos.Task, repos.User, log,
		app.WithOrganizationBroadcaster(fanout),
	)
	s.Team = app.NewTeamService(
		repos.Team, repos.Organization, repos.User, log,
		app.WithTeamBroadcaster(fanout),
	)
	s.Project = app.NewProjectService(
		repos.Project, repos.Team, log,
		app.WithProjectBroadcaster(fanout),
	)
	s.Task = app.NewTaskService(
		repos.Task, repos.Project, log,
		app.WithTaskBroadcaster(fanout),
	)

	invitationOpts := []app.InvitationServiceOption{
		app.WithInvitationBroadcaster(fanout),
	}
	if deps.EmailEnqueuer != nil {
		invitationOpts = append(invitationOpts, app.WithInvitationEmailEnqueuer(deps.EmailEnqueuer))
	}
	s.Invitation = app.NewInvitationService(
		repos.Invitation, repos.Organization, repos.Team, repos.Project, repos.User, log,
		invitationOpts...,
	)

	s.Email = app.NewEmailService(newEmailSender(cfg, log), cfg.SMTP, cfg.App.Name, log)
	s.Maintenance = app.NewMaintenanceService(repos.Invitation, repos.Audit, deps.Uploader, cfg.Maintenance, log)

	return s
}

// newEmailSender picks the SMTP sender when mail is configured and a no-op
// sender otherwise, so invitation flows never depend on a mail server being
// present.
func newEmailSender(cfg *config.Config, log *logger.Logger) email.Sender {
	if !cfg.SMTP.IsConfigured() {
		log.Warn("smtp not configured, invitation emails will be skipped")
		return email.NewNoOpSender()
	}
	smtp := email.NewSMTPSender(email.Config{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		FromName:   cfg.SMTP.FromName,
		TLS:        cfg.SMTP.TLS,
		SkipVerify: cfg.SMTP.SkipVerify,
		Timeout:    cfg.SMTP.Timeout,
	})
	return email.NewLoggingSender(smtp, log)
}

// subscriptionPolicy authorizes room subscriptions with the same membership
// resolution the HTTP layer uses. The hub's built-in policy only admits a
// client to its own organization room; team and project rooms need the
// membership lookups below.
func subscriptionPolicy(tenant *app.TenantContextService) websocket.AuthorizeFunc {
	return func(client *websocket.Client, channel string) bool {
		channelType, id := websocket.ParseChannel(channel)
		if id == "" {
			return false
		}

		userID, err := shared.ParseID(client.UserID)
		if err != nil {
			return false
		}
		orgID, err := shared.ParseID(client.OrganizationID)
		if err != nil {
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tc, _, err := tenant.ResolveOrganization(ctx, userID, orgID)
		if err != nil {
			return false
		}

		switch channelType {
		case websocket.ChannelTypeOrganization:
			return id == client.OrganizationID
		case websocket.ChannelTypeTeam:
			teamID, err := shared.ParseID(id)
			if err != nil {
				return false
			}
			_, _, err = tenant.WithTeamScope(ctx, tc, teamID)
			return err == nil
		case websocket.ChannelTypeProject:
			projectID, err := shared.ParseID(id)
			if err != nil {
				return false
			}
			_, _, err = tenant.WithProjectScope(ctx, tc, projectID)
			return err == nil
		default:
			return false
		}
	}
}
