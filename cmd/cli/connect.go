package cli

import (
	"github.com/spf13/cobra"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
)

var connectReq conndomain.ConnectRequest

var connectCmd = &cobra.Command{
	Use:   "connect <gmail|hubspot|zoho>",
	Short: "Store OAuth tokens for a provider",
	Long: `Store tokens obtained from a provider's OAuth flow. Connecting Gmail
starts ingestion from now: older messages are never imported.

Examples:
  abhivan connect gmail -u alice --access-token ya29... --refresh-token 1//...
  abhivan connect zoho -u alice --access-token ... --refresh-token ... --api-domain https://www.zohoapis.eu`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withContainer(func(c *Container) error {
			summary, err := c.Connection.Connect(cmd.Context(), userID, conndomain.Provider(args[0]), &connectReq)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		})
	},
}

func init() {
	f := connectCmd.Flags()
	f.StringVar(&connectReq.AccessToken, "access-token", "", "OAuth access token")
	f.StringVar(&connectReq.RefreshToken, "refresh-token", "", "OAuth refresh token")
	f.Int64Var(&connectReq.ExpiresIn, "expires-in", 0, "access token lifetime in seconds")
	f.StringVar(&connectReq.Email, "email", "", "account email")
	f.StringVar(&connectReq.APIDomain, "api-domain", "", "API root returned with the token (Zoho)")
	f.StringVar(&connectReq.PortalID, "portal-id", "", "HubSpot portal id, used for record links")
	_ = connectCmd.MarkFlagRequired("access-token")
}
