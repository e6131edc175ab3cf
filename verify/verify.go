// Package verify implements the attempt verifier: the nine-step sequence
// that runs a task's script and confirms the transfer actually landed
// correct bytes, not just that the script exited zero. Grounded on
// original_source/lib/execution/verify.py.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/stateerr"
	"github.com/wtsi-hgi/shepherd/store"
)

const checksumAlgorithm = "md5"

// Verifier runs the verification sequence for one task/attempt pair
// against a resolved pair of filesystem capabilities.
type Verifier struct {
	store    store.Store
	registry *filesystem.Registry
}

// New constructs a Verifier over the given store and filesystem registry.
func New(s store.Store, registry *filesystem.Registry) *Verifier {
	return &Verifier{store: s, registry: registry}
}

// sourceResult carries the outcome of the concurrent source-side
// size/checksum computation back to the foreground.
type sourceResult struct {
	size     int64
	checksum string
	err      error
}

// Run executes the nine-step verification sequence for attempt against
// task, persisting start/finish and the final exit code. It never
// returns an error for a failed script or mismatch — those are recorded
// as exit codes, per the sentinel scheme. Run only returns an error for
// infrastructure failures (database unreachable, filesystem resolution
// failure) that leave the attempt's terminal state ambiguous.
func (v *Verifier) Run(ctx context.Context, attempt model.Attempt, task model.Task) error {
	if err := v.start(ctx, attempt.ID); err != nil {
		return err
	}

	source, target, err := v.resolve(ctx, task)
	if err != nil {
		return err
	}

	resultCh := make(chan sourceResult, 1)
	go func() {
		size, err := source.fs.Size(ctx, source.address)
		if err != nil {
			resultCh <- sourceResult{err: err}
			return
		}
		sum, err := source.fs.Checksum(ctx, checksumAlgorithm, source.address)
		resultCh <- sourceResult{size: size, checksum: sum, err: err}
	}()

	exitCode, scriptErr := v.runScript(ctx, task.Script, source, target)

	srcResult := <-resultCh
	if srcResult.err != nil {
		return srcResult.err
	}
	if err := v.setSize(ctx, source.data, srcResult.size); err != nil {
		return err
	}
	if err := v.setChecksum(ctx, source.data, srcResult.checksum); err != nil {
		return err
	}

	if scriptErr != nil {
		return scriptErr
	}
	if exitCode != 0 {
		return v.finish(ctx, attempt.ID, exitCode)
	}

	targetSize, err := target.fs.Size(ctx, target.address)
	if err != nil {
		return err
	}
	if err := v.setSize(ctx, target.data, targetSize); err != nil {
		return err
	}
	if targetSize != srcResult.size {
		return v.finish(ctx, attempt.ID, model.MismatchedSize)
	}

	targetChecksum, err := target.fs.Checksum(ctx, checksumAlgorithm, target.address)
	if err != nil {
		return err
	}
	if err := v.setChecksum(ctx, target.data, targetChecksum); err != nil {
		return err
	}
	if targetChecksum != srcResult.checksum {
		return v.finish(ctx, attempt.ID, model.MismatchedChecksum)
	}

	return v.finish(ctx, attempt.ID, 0)
}

// setSize persists a data row's byte size in its own short transaction;
// SetSize's write-once semantics make this safe to call independently of
// the attempt's own start/finish transactions.
func (v *Verifier) setSize(ctx context.Context, data int64, bytes int64) error {
	tx, err := v.store.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := v.store.SetSize(ctx, tx, data, bytes); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (v *Verifier) setChecksum(ctx context.Context, data int64, value string) error {
	tx, err := v.store.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := v.store.SetChecksum(ctx, tx, data, checksumAlgorithm, value); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// resolvedEnd is a Data row resolved to its live Capability.
type resolvedEnd struct {
	data    int64
	fs      filesystem.Capability
	address string
}

func (v *Verifier) resolve(ctx context.Context, task model.Task) (source, target resolvedEnd, err error) {
	source, err = v.resolveData(ctx, task.Source)
	if err != nil {
		return
	}
	target, err = v.resolveData(ctx, task.Target)
	return
}

func (v *Verifier) resolveData(ctx context.Context, dataID int64) (resolvedEnd, error) {
	d, err := v.store.GetData(ctx, dataID)
	if err != nil {
		return resolvedEnd{}, err
	}
	fsRow, err := v.store.GetFilesystem(ctx, d.Filesystem)
	if err != nil {
		return resolvedEnd{}, err
	}
	fs, err := v.registry.Resolve(fsRow.Name)
	if err != nil {
		return resolvedEnd{}, stateerr.NewBackend(err.Error())
	}
	return resolvedEnd{data: dataID, fs: fs, address: d.Address}, nil
}

// runScript writes script to a fresh temporary file, makes it executable,
// and runs it, capturing the exit code.
func (v *Verifier) runScript(ctx context.Context, script string, source, target resolvedEnd) (int, error) {
	f, err := os.CreateTemp("", "shepherd-attempt-*.sh")
	if err != nil {
		return 0, err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(path, 0o700); err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SHEPHERD_SOURCE=%s", source.address),
		fmt.Sprintf("SHEPHERD_TARGET=%s", target.address),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("verify: could not run %s: %w (stderr: %s)", filepath.Base(path), err, stderr.String())
	}
	return 0, nil
}

func (v *Verifier) start(ctx context.Context, attempt int64) error {
	tx, err := v.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := v.store.StartAttempt(ctx, tx, attempt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (v *Verifier) finish(ctx context.Context, attempt int64, exitCode int) error {
	tx, err := v.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := v.store.FinishAttempt(ctx, tx, attempt, exitCode); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
