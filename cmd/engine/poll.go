package main

import (
	"encoding/json"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobtrack-engine/internal/poll"
)

var pollUser string

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the email poller once and print the summary",
	Long: `Run the email poller once, outside the server's schedule.

Examples:
  # every configured account
  engine poll

  # one user's mailbox
  engine poll --user 42`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().StringVar(&pollUser, "user", "", "poll only this user's account")
}

func runPoll(cmd *cobra.Command, _ []string) error {
	a, err := loadConfig()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openStore(); err != nil {
		return err
	}

	runner := newRunner(a, nil, poll.NewMetrics(prometheus.NewRegistry()))

	var sum poll.Summary
	if pollUser != "" {
		sum, err = runner.RunUser(cmd.Context(), pollUser)
	} else {
		sum, err = runner.RunAll(cmd.Context())
	}
	if errors.Is(err, poll.ErrBusy) {
		a.log.Warn("another poll is running; try again later")
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(sum); encErr != nil {
		return encErr
	}
	if err != nil {
		a.log.Error("poll finished with errors", zap.Error(err))
	}
	return err
}
