package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/infra/postgres"
	"github.com/taskforge/api/pkg/domain/shared"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var (
	flagOwnerEmail string
	flagOwnerName  string
	flagOrgName    string
	flagOrgSlug    string
)

func init() {
	orgCmd.AddCommand(orgListCmd)
	orgCmd.AddCommand(orgCreateOwnerCmd)

	orgCreateOwnerCmd.Flags().StringVar(&flagOwnerEmail, "email", "", "Owner email (required)")
	orgCreateOwnerCmd.Flags().StringVar(&flagOwnerName, "name", "", "Owner display name (defaults to the email)")
	orgCreateOwnerCmd.Flags().StringVar(&flagOrgName, "org-name", "", "Organization name (required)")
	orgCreateOwnerCmd.Flags().StringVar(&flagOrgSlug, "org-slug", "", "Organization slug (derived from the name when empty)")
	_ = orgCreateOwnerCmd.MarkFlagRequired("email")
	_ = orgCreateOwnerCmd.MarkFlagRequired("org-name")
}

// orgRow is the listing shape for structured output.
type orgRow struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Slug      string     `json:"slug" yaml:"slug"`
	Members   int64      `json:"members" yaml:"members"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

var orgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all organizations with member counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		// The API never exposes a cross-tenant listing, so this reads the
		// table directly instead of growing the repository interface.
		rows, err := b.db.QueryContext(cmd.Context(), `
			SELECT o.id, o.name, o.slug, o.created_at, o.deleted_at,
			       COUNT(m.user_id) AS members
			FROM organizations o
			LEFT JOIN organization_members m ON m.organization_id = o.id
			GROUP BY o.id
			ORDER BY o.created_at DESC`)
		if err != nil {
			return fmt.Errorf("list organizations: %w", err)
		}
		defer rows.Close()

		var orgs []orgRow
		for rows.Next() {
			var row orgRow
			if err := rows.Scan(&row.ID, &row.Name, &row.Slug, &row.CreatedAt, &row.DeletedAt, &row.Members); err != nil {
				return fmt.Errorf("scan organization: %w", err)
			}
			orgs = append(orgs, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if printStructured(orgs) {
			return nil
		}

		t := newTable("ID", "NAME", "SLUG", "MEMBERS", "CREATED", "DELETED")
		for _, o := range orgs {
			t.AddRow(o.ID, o.Name, o.Slug, strconv.FormatInt(o.Members, 10), shortTime(o.CreatedAt), deletedMark(o.DeletedAt))
		}
		t.Flush()
		fmt.Printf("\n%d organization(s)\n", len(orgs))
		return nil
	},
}

var orgCreateOwnerCmd = &cobra.Command{
	Use:   "create-owner",
	Short: "Create an organization with its founding owner",
	Long: `Create an organization together with its founding Owner membership.

The owner's user row is created (or refreshed, when a user with the email
already exists), so the command works on an empty database. Follow up with
"taskforge-admin token issue" to mint a token for the new owner.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		users := postgres.NewUserRepository(b.db)

		ownerName := flagOwnerName
		if ownerName == "" {
			ownerName = flagOwnerEmail
		}

		// Reuse the user row when the email is already known; identity
		// providers key users by stable id, and so does this bootstrap.
		ownerID := shared.NewID()
		if existing, err := users.GetByEmail(ctx, flagOwnerEmail); err == nil {
			ownerID = existing.ID()
		}

		userService := app.NewUserService(users, b.log)
		owner, err := userService.SyncFromClaims(ctx, ownerID, flagOwnerEmail, ownerName)
		if err != nil {
			return fmt.Errorf("create owner user: %w", err)
		}

		orgService := app.NewOrganizationService(
			postgres.NewOrganizationRepository(b.db),
			postgres.NewTeamRepository(b.db),
			postgres.NewProjectRepository(b.db),
			postgres.NewTaskRepository(b.db),
			users,
			b.log,
		)
		org, err := orgService.Create(ctx, owner.ID(), app.CreateOrganizationInput{
			Name: flagOrgName,
			Slug: flagOrgSlug,
		})
		if err != nil {
			return fmt.Errorf("create organization: %w", err)
		}

		result := map[string]string{
			"organization_id":   org.ID().String(),
			"organization_slug": org.Slug(),
			"owner_id":          owner.ID().String(),
			"owner_email":       owner.Email(),
		}
		if printStructured(result) {
			return nil
		}

		fmt.Printf("Organization %q created\n", org.Name())
		fmt.Printf("  ID:    %s\n", org.ID())
		fmt.Printf("  Slug:  %s\n", org.Slug())
		fmt.Printf("Owner %s\n", owner.Email())
		fmt.Printf("  ID:    %s\n", owner.ID())
		fmt.Printf("\nMint a token with:\n")
		fmt.Printf("  taskforge-admin token issue --user %s --email %s --org %s\n",
			owner.ID(), owner.Email(), org.ID())
		return nil
	},
}
