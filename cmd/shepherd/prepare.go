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

var prepareCmd = &cobra.Command{
	Use:    "__prepare <job_id>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrepare(cmd.Context(), args[0])
	},
}

// runPrepare is the preparation-worker entry point: reopen the job,
// re-read its fofn/subcollection metadata, and run the planner over it.
// Grounded on original_source/cli/dummy.py's prepare().
func runPrepare(ctx context.Context, jobIDArg string) error {
	jobID, err := strconv.ParseInt(jobIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("shepherd: invalid job id %q: %w", jobIDArg, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir, err := logDir(cfg)
	if err != nil {
		return err
	}
	logFile, err := openLogFile(dir, "prepare.log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := state.OpenJob(ctx, s, client, &jobID, false)
	if err != nil {
		return fmt.Errorf("shepherd: open job: %w", err)
	}

	fofn, _, err := job.Metadata(ctx, "fofn")
	if err != nil {
		return fmt.Errorf("shepherd: read fofn metadata: %w", err)
	}
	subcollection, _, err := job.Metadata(ctx, "subcollection")
	if err != nil {
		return fmt.Errorf("shepherd: read subcollection metadata: %w", err)
	}

	registry, lustre, irods := buildRegistry()
	route := buildRoute(cfg, lustre, irods, subcollection)

	pw := &worker.PrepareWorker{
		Job:      job,
		Registry: registry,
		Emitter:  buildEmitter(logFile),
		FoFN:     fofn,
	}

	if err := pw.Run(ctx, route); err != nil {
		return fmt.Errorf("shepherd: preparation failed: %w", err)
	}
	return nil
}
