// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package wincmd wraps the external command-line tools the bootstrap
// drives (winget, dism, git, shutdown, the docker CLI). Everything the
// bootstrap knows about a tool is its exit status, so the surface here
// is deliberately small.
package wincmd

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("hostboot.wincmd")

// Runner runs external commands. Implementations must resolve the
// command through the search path so tests can substitute executables.
type Runner interface {
	// LookPath resolves file against the search path.
	LookPath(file string) (string, error)

	// Run executes the command and waits for it, returning an error
	// for a non-zero exit status.
	Run(name string, arg ...string) error

	// Output executes the command and returns its combined output.
	Output(name string, arg ...string) (string, error)

	// OutputWithTimeout is Output with a hard deadline; the spawned
	// process is killed when the deadline expires.
	OutputWithTimeout(timeout time.Duration, name string, arg ...string) (string, error)

	// Start launches the command without waiting for it.
	Start(name string, arg ...string) error
}

// New returns a Runner backed by os/exec.
func New() Runner {
	return &execRunner{}
}

type execRunner struct{}

func (*execRunner) LookPath(file string) (string, error) {
	path, err := exec.LookPath(file)
	if err != nil {
		return "", errors.Trace(err)
	}
	return path, nil
}

func (*execRunner) Run(name string, arg ...string) error {
	logger.Debugf("running %s %v", name, arg)
	cmd := exec.Command(name, arg...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return errors.Annotatef(cmd.Run(), "command %q", name)
}

func (*execRunner) Output(name string, arg ...string) (string, error) {
	logger.Debugf("running %s %v", name, arg)
	out, err := exec.Command(name, arg...).CombinedOutput()
	if err != nil {
		return string(out), errors.Annotatef(err, "command %q", name)
	}
	return string(out), nil
}

func (*execRunner) OutputWithTimeout(timeout time.Duration, name string, arg ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Debugf("running %s %v (timeout %s)", name, arg, timeout)
	out, err := exec.CommandContext(ctx, name, arg...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), errors.Annotatef(errors.Timeoutf("command %q", name), "after %s", timeout)
	}
	if err != nil {
		return string(out), errors.Annotatef(err, "command %q", name)
	}
	return string(out), nil
}

func (*execRunner) Start(name string, arg ...string) error {
	logger.Debugf("starting %s %v", name, arg)
	cmd := exec.Command(name, arg...)
	if err := cmd.Start(); err != nil {
		return errors.Annotatef(err, "starting %q", name)
	}
	// The child is deliberately not reaped; it outlives us.
	return errors.Trace(cmd.Process.Release())
}
