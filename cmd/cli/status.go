package cli

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's connections and ingestion progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withContainer(func(c *Container) error {
			ctx := cmd.Context()
			mailbox, err := c.Mailbox.Status(ctx, userID)
			if err != nil {
				return err
			}
			connections, err := c.Connection.List(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"gmail":       mailbox,
				"connections": connections,
			})
		})
	},
}
