package cli

import (
	"github.com/spf13/cobra"

	crmdomain "github.com/kowsik11/abhivan/internal/crm/domain"
	"github.com/kowsik11/abhivan/internal/pipeline/usecase"
	"github.com/kowsik11/abhivan/pkg/config"
)

var (
	runMax    int
	runQuery  string
	runLabels []string
	runCRM    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process new messages once",
	Long: `Fetch new messages for a user, extract them and write the results to
the CRM. Use --crm none to extract and plan without writing anything.

Examples:
  abhivan run -u alice
  abhivan run -u alice --crm zoho --max 25
  abhivan run -u alice --crm none --query "from:acme.com"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withContainer(func(c *Container) error {
			req, err := runRequest(c.Config)
			if err != nil {
				return err
			}
			result, err := c.Runner.Run(cmd.Context(), req)
			if result != nil {
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

func runRequest(cfg *config.Config) (usecase.RunRequest, error) {
	target := runCRM
	if target == "" {
		target = cfg.DefaultCRM
	}
	crm, err := crmdomain.ParseTarget(target)
	if err != nil {
		return usecase.RunRequest{}, err
	}
	limit := runMax
	if limit <= 0 {
		limit = cfg.PollMaxMessages
	}
	return usecase.RunRequest{
		UserID:      userID,
		MaxMessages: limit,
		Query:       runQuery,
		LabelIDs:    runLabels,
		CRM:         crm,
	}, nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&runMax, "max", 0, "maximum messages per run (default: $POLL_MAX_MESSAGES)")
	cmd.Flags().StringVar(&runQuery, "query", "", "extra Gmail search query")
	cmd.Flags().StringSliceVar(&runLabels, "label", nil, "restrict to Gmail label ids")
	cmd.Flags().StringVar(&runCRM, "crm", "", "hubspot, zoho or none (default: $DEFAULT_CRM)")
}

func init() {
	addRunFlags(runCmd)
}
