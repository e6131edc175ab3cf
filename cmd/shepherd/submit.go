package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wtsi-hgi/shepherd/config"
	"github.com/wtsi-hgi/shepherd/executor"
	"github.com/wtsi-hgi/shepherd/state"
)

var submitCmd = &cobra.Command{
	Use:   "submit <fofn> <subcollection>",
	Short: "Submit a FoFN for bulk transfer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubmit(cmd.Context(), args[0], args[1])
	},
}

// runSubmit creates the job row, records the FoFN path and target
// subcollection as metadata (read back by the preparation worker), and
// submits the preparation and transfer worker arrays to the cluster.
// Grounded on original_source/cli/dummy.py's submit().
func runSubmit(ctx context.Context, fofn, subcollection string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir, err := logDir(cfg)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := state.OpenJob(ctx, s, client, nil, false)
	if err != nil {
		return fmt.Errorf("shepherd: open job: %w", err)
	}
	if err := job.SetMaxAttempts(ctx, cfg.MaxAttempts); err != nil {
		return fmt.Errorf("shepherd: set max attempts: %w", err)
	}
	if err := job.SetMetadata(ctx, "fofn", fofn); err != nil {
		return fmt.Errorf("shepherd: set fofn metadata: %w", err)
	}
	if err := job.SetMetadata(ctx, "subcollection", subcollection); err != nil {
		return fmt.Errorf("shepherd: set subcollection metadata: %w", err)
	}

	fmt.Printf("Created job %d with up to %d attempts per task\n", job.ID(), cfg.MaxAttempts)

	bin, err := binaryPath()
	if err != nil {
		return fmt.Errorf("shepherd: resolve binary path: %w", err)
	}

	exec := newLSFExecutor(cfg)
	jobID := fmt.Sprint(job.ID())

	prepIDs, err := exec.Submit(ctx, executor.JobSpec{
		Command: []string{bin, "__prepare", jobID},
		Queue:   cfg.PrepQueue,
		Stdout:  dir + "/prepare.log",
		Stderr:  dir + "/prepare.log",
	})
	if err != nil {
		return fmt.Errorf("shepherd: submit preparation worker: %w", err)
	}
	fmt.Printf("Preparation phase submitted as %s\n", prepIDs[0])

	// See original_source/cli/dummy.py's NOTE: with a single Lustre-iRODS
	// route, the worker count is the pairwise minimum of the route's
	// filesystem concurrency limits. A multi-hop route would need a
	// proper per-edge bound instead.
	maxConcurrency := sourceMaxConcurrency
	if targetMaxConcurrency < maxConcurrency {
		maxConcurrency = targetMaxConcurrency
	}

	// Not dependency-gated on the preparation worker at the scheduler
	// level: each transfer worker waits for the preparation phase to
	// start by polling job state itself (worker.waitForPreparation), the
	// same as original_source/cli/dummy.py's submit(), which submits both
	// arrays independently.
	transferIDs, err := exec.Submit(ctx, executor.JobSpec{
		Command: []string{bin, "__transfer", jobID},
		Queue:   cfg.TransferQueue,
		Workers: maxConcurrency,
		Stdout:  dir + "/transfer.%I.log",
		Stderr:  dir + "/transfer.%I.log",
	})
	if err != nil {
		return fmt.Errorf("shepherd: submit transfer workers: %w", err)
	}
	fmt.Printf("Transfer phase submitted with %d workers\n", len(transferIDs))

	return nil
}
