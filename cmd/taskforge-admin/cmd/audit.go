package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/infra/archive"
	"github.com/taskforge/api/internal/infra/postgres"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Operate on the audit trail",
}

func init() {
	auditCmd.AddCommand(auditArchiveCmd)
}

var auditArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Export audit entries past retention to archive storage and delete them",
	Long: `Run one audit archive cycle, the same work the scheduled maintenance job does.

Entries older than the configured retention window are exported as gzipped
JSONL to the configured S3 bucket, then deleted. Requires ARCHIVE_ENABLED
and the bucket settings; without them the command reports zero work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()

		var uploader app.AuditArchiveUploader
		if b.cfg.Archive.Enabled {
			u, err := archive.NewUploader(ctx, &b.cfg.Archive, b.log)
			if err != nil {
				return fmt.Errorf("create archive uploader: %w", err)
			}
			uploader = u
		}

		maintenance := app.NewMaintenanceService(
			postgres.NewInvitationRepository(b.db),
			postgres.NewAuditRepository(b.db),
			uploader,
			b.cfg.Maintenance,
			b.log,
		)
		archived, err := maintenance.ArchiveAuditEntries(ctx)
		if err != nil {
			return fmt.Errorf("archive audit entries: %w", err)
		}

		if printStructured(map[string]int64{"archived": archived}) {
			return nil
		}
		fmt.Printf("Archived %d audit entries\n", archived)
		return nil
	},
}
