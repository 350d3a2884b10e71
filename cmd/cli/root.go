package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kowsik11/abhivan/pkg/config"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "abhivan",
	Short: "Turn incoming email into CRM contacts, companies and notes",
	Long: `abhivan reads new Gmail messages, extracts people, companies and next
steps with Gemini, and writes them to HubSpot or Zoho CRM.

Every message is written at most once per CRM: notes carry the Gmail
message id and are looked up before anything is created.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id whose connections are used")

	rootCmd.AddCommand(serveCmd, runCmd, watchCmd, statusCmd, connectCmd, tokenCmd)
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withContainer loads configuration, wires the application and hands it to fn.
func withContainer(fn func(c *Container) error) error {
	c, err := NewContainer(config.Load())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
