package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	authUsecase "github.com/kowsik11/abhivan/internal/auth/usecase"
	"github.com/kowsik11/abhivan/pkg/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an API bearer token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		token, err := authUsecase.NewAuthUsecase(config.Load().JWTSecret).IssueToken(userID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
