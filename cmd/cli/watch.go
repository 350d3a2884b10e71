package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kowsik11/abhivan/internal/pipeline/scheduler"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll for new messages on an interval",
	Long: `Run the pipeline for one user immediately and then every --interval
until interrupted. A tick that finds the previous run still going is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		return withContainer(func(c *Container) error {
			req, err := runRequest(c.Config)
			if err != nil {
				return err
			}
			interval := watchInterval
			if interval <= 0 {
				interval = c.Config.PollInterval
			}

			s := scheduler.NewPollScheduler(c.Runner, req, interval)
			s.Start(cmd.Context())
			<-s.Done()
			return nil
		})
	},
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default: $POLL_INTERVAL)")
}
