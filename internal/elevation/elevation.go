// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package elevation implements the privilege gate. An unprivileged
// invocation does no work at all: it stages a copy of the running
// executable into the temp directory, relaunches it under an elevation
// prompt and exits, leaving everything else to the elevated instance.
// The staged copy is also what the logon resume entry points at after
// a reboot.
package elevation

import (
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("hostboot.elevation")

// Result says how a RunWithElevation call resolved.
type Result int

const (
	// Elevated means the current process already holds elevated
	// rights; continue in-process.
	Elevated Result = iota

	// Relaunched means an elevated copy has been launched; the
	// current process must exit with status 0 and do nothing else.
	Relaunched
)

const stagedName = "hostboot.exe"

// Gate decides whether this invocation may proceed or must hand off
// to an elevated relaunch of itself.
type Gate struct {
	stagingDir string

	// Hooks, replaceable for tests.
	isElevated func() (bool, error)
	executable func() (string, error)
	relaunch   func(exe string) error
}

// NewGate returns a Gate staging into dir, or the user temp directory
// when dir is empty.
func NewGate(dir string) *Gate {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "hostboot")
	}
	return &Gate{
		stagingDir: dir,
		isElevated: isElevated,
		executable: os.Executable,
		relaunch:   relaunchElevated,
	}
}

// StagedPath returns where the executable is (or will be) staged.
func (g *Gate) StagedPath() string {
	return filepath.Join(g.stagingDir, stagedName)
}

// RunWithElevation returns Elevated when the process already runs
// elevated. Otherwise it stages the executable, launches the staged
// copy under an elevation prompt and returns Relaunched; the caller
// must then exit 0 immediately. A declined prompt that never spawns a
// process is indistinguishable from a successful handoff here; only
// a relaunch that fails outright surfaces an error.
func (g *Gate) RunWithElevation() (Result, error) {
	elevated, err := g.isElevated()
	if err != nil {
		return 0, errors.Annotate(err, "querying process elevation")
	}
	if elevated {
		logger.Debugf("already elevated")
		return Elevated, nil
	}
	staged, err := g.Stage()
	if err != nil {
		return 0, errors.Trace(err)
	}
	logger.Infof("not elevated, relaunching %s with elevation", staged)
	if err := g.relaunch(staged); err != nil {
		return 0, errors.Annotate(err, "relaunching elevated")
	}
	return Relaunched, nil
}

// Stage copies the running executable into the staging directory.
// An existing staged copy is left alone so repeated relaunch attempts
// and post-reboot resumes do not fight over the file.
func (g *Gate) Stage() (string, error) {
	staged := g.StagedPath()
	self, err := g.executable()
	if err != nil {
		return "", errors.Annotate(err, "locating own executable")
	}
	if filepath.Clean(self) == filepath.Clean(staged) {
		return staged, nil
	}
	if _, err := os.Stat(staged); err == nil {
		logger.Debugf("already staged at %s", staged)
		return staged, nil
	}
	if err := os.MkdirAll(g.stagingDir, 0755); err != nil {
		return "", errors.Annotate(err, "creating staging directory")
	}
	if err := copyFile(self, staged); err != nil {
		return "", errors.Annotate(err, "staging executable")
	}
	logger.Infof("staged executable at %s", staged)
	return staged, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Trace(err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Trace(err)
	}
	return errors.Trace(out.Close())
}
