package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskforge/api/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint development tokens",
}

var (
	flagTokenUser  string
	flagTokenEmail string
	flagTokenName  string
	flagTokenOrg   string
)

func init() {
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().StringVar(&flagTokenUser, "user", "", "User id for the subject claim (required)")
	tokenIssueCmd.Flags().StringVar(&flagTokenEmail, "email", "", "Email claim")
	tokenIssueCmd.Flags().StringVar(&flagTokenName, "name", "", "Display name claim")
	tokenIssueCmd.Flags().StringVar(&flagTokenOrg, "org", "", "Organization id for the active-organization claim")
	_ = tokenIssueCmd.MarkFlagRequired("user")
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed access token for local development",
	Long: `Issue an HS256 access token signed with the deployment's JWT secret.

Production deployments get tokens from the identity provider; this exists
for local development and smoke tests. Tokens without --org can only reach
the bootstrap, organization-listing and invitation-acceptance endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		generator := jwt.NewGenerator(jwt.TokenConfig{
			Secret:              cfg.Auth.JWTSecret,
			Issuer:              cfg.Auth.JWTIssuer,
			AccessTokenDuration: cfg.Auth.AccessTokenDuration,
		})
		token, expiresAt, err := generator.GenerateAccessToken(flagTokenUser, flagTokenEmail, flagTokenName, flagTokenOrg)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		result := map[string]string{
			"token":      token,
			"expires_at": expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if printStructured(result) {
			return nil
		}

		fmt.Println(token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", shortTime(expiresAt))
		return nil
	},
}
