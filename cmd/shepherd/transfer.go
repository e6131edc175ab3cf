package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wtsi-hgi/shepherd/config"
	"github.com/wtsi-hgi/shepherd/executor"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/verify"
	"github.com/wtsi-hgi/shepherd/worker"
)

var transferCmd = &cobra.Command{
	Use:    "__transfer <job_id>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd.Context(), args[0])
	},
}

// runTransfer is one indexed slot of the transfer worker array. It
// derives its own scheduler identity and runtime limit from the LSF
// array-job environment variables LSB_JOBID/LSB_JOBINDEX (the process's
// own view of "self" a cluster-native worker relies on, since nothing in
// the command line identifies it to the scheduler).
func runTransfer(ctx context.Context, jobIDArg string) error {
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
	logFile, err := openLogFile(dir, fmt.Sprintf("transfer.%s.log", os.Getenv("LSB_JOBINDEX")))
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

	index := 1
	if v := os.Getenv("LSB_JOBINDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			index = n
		}
	}

	self := executor.WorkerIdentifier(os.Getenv("LSB_JOBID"))
	if idx := os.Getenv("LSB_JOBINDEX"); self != "" && idx != "" {
		self = executor.WorkerIdentifier(fmt.Sprintf("%s[%s]", self, idx))
	}

	exec := newLSFExecutor(cfg)

	processStart := time.Now()
	runtimeLimit := worker.DefaultFudge * 2
	if self != "" {
		wc, err := exec.Worker(ctx, self)
		if err == nil && wc.RuntimeLimit > 0 {
			runtimeLimit = wc.RuntimeLimit
		}
	}

	bin, err := binaryPath()
	if err != nil {
		return fmt.Errorf("shepherd: resolve binary path: %w", err)
	}

	registry, _, _ := buildRegistry()

	tw := &worker.TransferWorker{
		Job:      job,
		Verifier: verify.New(s, registry),
		Executor: exec,
		Emitter:  buildEmitter(logFile),
		Metrics:  newMetrics(),
		Self:     self,
		Index:    index,
		FollowOn: executor.JobSpec{
			Command: []string{bin, "__transfer", jobIDArg},
			Queue:   cfg.TransferQueue,
			Stdout:  dir + "/transfer.%I.log",
			Stderr:  dir + "/transfer.%I.log",
		},
		ProcessStart: processStart,
		RuntimeLimit: runtimeLimit,
	}

	if err := tw.Run(ctx); err != nil {
		return fmt.Errorf("shepherd: transfer failed: %w", err)
	}
	return nil
}
