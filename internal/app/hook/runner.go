// Package hook runs user-configured shell commands on lifecycle events.
package hook

import (
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/domain/session"
)

// Environment variables passed to completion hooks.
const (
	EnvEnded   = "FREETIME_ENDED"
	EnvStarted = "FREETIME_STARTED"
	EnvSeq     = "FREETIME_SEQ"
)

// Runner executes hook commands through sh -c.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer

	wg sync.WaitGroup
}

// NewRunner creates a Runner writing command output to the process streams.
func NewRunner() *Runner {
	return &Runner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// RunStage runs the commands for stage in order and waits for them.
// Failures are logged and do not stop the remaining commands.
func (r *Runner) RunStage(stage string, cmds []string) {
	r.run(stage, cmds, nil)
}

// Wait blocks until all asynchronous hooks have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(stage string, cmds []string, env []string) {
	if len(cmds) == 0 {
		return
	}

	zlog.Info().Msgf("hook: executing %s hooks (%d commands)", stage, len(cmds))

	for _, hook := range cmds {
		zlog.Debug().Msgf("hook: executing: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
		if env != nil {
			cmd.Env = append(os.Environ(), env...)
		}

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(errors.Wrapf(err, "stage %s", stage)).Msgf("hook: failed to execute: %s", hook)
		}
	}
}

// CompletionNotifier runs the on_complete commands for every phase
// completion without blocking the caller.
type CompletionNotifier struct {
	runner *Runner
	cmds   []string
}

// Notifier returns a completion notifier running cmds.
func (r *Runner) Notifier(cmds []string) *CompletionNotifier {
	return &CompletionNotifier{runner: r, cmds: cmds}
}

// Notify implements notification.Notifier.
func (n *CompletionNotifier) Notify(c session.Completion) error {
	if len(n.cmds) == 0 {
		return nil
	}

	env := []string{
		EnvEnded + "=" + c.Ended.String(),
		EnvStarted + "=" + c.Started.String(),
		EnvSeq + "=" + strconv.FormatUint(c.Seq, 10),
	}

	n.runner.wg.Add(1)
	go func() {
		defer n.runner.wg.Done()
		n.runner.run("on_complete", n.cmds, env)
	}()
	return nil
}
