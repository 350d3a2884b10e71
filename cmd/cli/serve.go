package cli

import (
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. Every route except /api/health requires a bearer
JWT signed with JWT_SECRET; the token's subject is the user id.

Examples:
  abhivan serve               # listen on $PORT (default 8080)
  abhivan serve --port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *Container) error {
			port := servePort
			if port == "" {
				port = c.Config.Port
			}
			handler, err := c.APIHandler()
			if err != nil {
				return err
			}
			return handler.Start(cmd.Context(), ":"+port)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default: $PORT)")
}
