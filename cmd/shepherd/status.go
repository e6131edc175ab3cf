package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wtsi-hgi/shepherd/config"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/worker"
)

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Report a job's task counts and throughput",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), args[0])
	},
}

func runStatus(ctx context.Context, jobIDArg string) error {
	jobID, err := strconv.ParseInt(jobIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("shepherd: invalid job id %q: %w", jobIDArg, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := state.OpenJob(ctx, s, client, &jobID, false)
	if err != nil {
		return fmt.Errorf("shepherd: open job: %w", err)
	}

	st, err := worker.Report(ctx, job, sourceName, targetName)
	if err != nil {
		return fmt.Errorf("shepherd: report status: %w", err)
	}

	fmt.Println(st.String())
	return nil
}
