package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/infra/postgres"
)

var invitationCmd = &cobra.Command{
	Use:   "invitation",
	Short: "Manage invitations",
}

var (
	flagInviteOrg         string
	flagInviteInviter     string
	flagInviteEmail       string
	flagInviteRole        string
	flagInviteTeam        string
	flagInviteTeamRole    string
	flagInviteProject     string
	flagInviteProjectRole string
)

func init() {
	invitationCmd.AddCommand(invitationIssueCmd)
	invitationCmd.AddCommand(invitationPruneCmd)

	invitationIssueCmd.Flags().StringVar(&flagInviteOrg, "org", "", "Organization slug (required)")
	invitationIssueCmd.Flags().StringVar(&flagInviteInviter, "inviter", "", "Inviter email, must be an org admin or owner (required)")
	invitationIssueCmd.Flags().StringVar(&flagInviteEmail, "email", "", "Recipient email (required)")
	invitationIssueCmd.Flags().StringVar(&flagInviteRole, "role", "member", "Organization role to grant: admin or member")
	invitationIssueCmd.Flags().StringVar(&flagInviteTeam, "team", "", "Team id for an optional team grant")
	invitationIssueCmd.Flags().StringVar(&flagInviteTeamRole, "team-role", "", "Team role: lead or member, required with --team")
	invitationIssueCmd.Flags().StringVar(&flagInviteProject, "project", "", "Project id for an optional project grant")
	invitationIssueCmd.Flags().StringVar(&flagInviteProjectRole, "project-role", "", "Project role: manager, contributor or viewer, required with --project")
	_ = invitationIssueCmd.MarkFlagRequired("org")
	_ = invitationIssueCmd.MarkFlagRequired("inviter")
	_ = invitationIssueCmd.MarkFlagRequired("email")
}

var invitationIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an invitation on behalf of an organization admin",
	Long: `Issue an invitation exactly as the API would, including the audit entry.

The inviter must already be an Admin or Owner of the organization; the
command runs under their identity. The acceptance token is printed once and
never again, the same contract the API's create endpoint has.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		orgs := postgres.NewOrganizationRepository(b.db)
		teams := postgres.NewTeamRepository(b.db)
		projects := postgres.NewProjectRepository(b.db)
		users := postgres.NewUserRepository(b.db)

		org, err := orgs.GetBySlug(ctx, flagInviteOrg, false)
		if err != nil {
			return fmt.Errorf("organization %q: %w", flagInviteOrg, err)
		}
		inviter, err := users.GetByEmail(ctx, flagInviteInviter)
		if err != nil {
			return fmt.Errorf("inviter %q: %w", flagInviteInviter, err)
		}

		tenantService := app.NewTenantContextService(orgs, teams, projects, b.log)
		tc, _, err := tenantService.ResolveOrganization(ctx, inviter.ID(), org.ID())
		if err != nil {
			return fmt.Errorf("resolve inviter membership: %w", err)
		}

		invitationService := app.NewInvitationService(
			postgres.NewInvitationRepository(b.db), orgs, teams, projects, users, b.log,
		)
		inv, err := invitationService.Create(ctx, tc, app.CreateInvitationInput{
			Email:       flagInviteEmail,
			OrgRole:     flagInviteRole,
			TeamID:      flagInviteTeam,
			TeamRole:    flagInviteTeamRole,
			ProjectID:   flagInviteProject,
			ProjectRole: flagInviteProjectRole,
		})
		if err != nil {
			return fmt.Errorf("issue invitation: %w", err)
		}

		result := map[string]string{
			"invitation_id": inv.ID().String(),
			"email":         inv.Email(),
			"org_role":      string(inv.OrgRole()),
			"token":         inv.Token(),
			"expires_at":    inv.ExpiresAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if printStructured(result) {
			return nil
		}

		fmt.Printf("Invitation issued to %s (%s)\n", inv.Email(), inv.OrgRole())
		fmt.Printf("  ID:         %s\n", inv.ID())
		fmt.Printf("  Expires at: %s\n", shortTime(inv.ExpiresAt()))
		fmt.Printf("  Token:      %s\n", inv.Token())
		fmt.Println("\nThe token is not retrievable later; share it now.")
		return nil
	},
}

var invitationPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired pending invitations past the grace window",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		maintenance := app.NewMaintenanceService(
			postgres.NewInvitationRepository(b.db),
			postgres.NewAuditRepository(b.db),
			nil,
			b.cfg.Maintenance,
			b.log,
		)
		deleted, err := maintenance.PruneExpiredInvitations(cmd.Context())
		if err != nil {
			return fmt.Errorf("prune invitations: %w", err)
		}

		if printStructured(map[string]int64{"deleted": deleted}) {
			return nil
		}
		fmt.Printf("Deleted %d expired invitation(s)\n", deleted)
		return nil
	},
}
