// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provision installs the prerequisite tooling: it checks for
// each tool on the search path and, only when absent, installs it
// through the platform package manager. A failed install aborts the
// whole bootstrap; there is no cleanup because every step is safe to
// rerun.
package provision

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/medalpool/hostboot/internal/wincmd"
)

var logger = loggo.GetLogger("hostboot.provision")

const (
	// ErrPackageManagerMissing means winget itself is absent. It is
	// the install mechanism for everything else, so there is no
	// auto-install path; the user must update App Installer.
	ErrPackageManagerMissing = errors.ConstError("package manager not found")

	// ErrInstallFailed means a spawned installer returned non-zero.
	ErrInstallFailed = errors.ConstError("package install failed")
)

const packageManager = "winget"

// Tool pairs the command probed on the search path with the winget
// package id that installs it.
type Tool struct {
	Command string
	Package string
}

// The prerequisite tooling, in install order.
var (
	Git    = Tool{Command: "git", Package: "Git.Git"}
	Docker = Tool{Command: "docker", Package: "Docker.DockerDesktop"}
)

// Status reports what EnsureTool did.
type Status int

const (
	// AlreadyPresent means the tool resolved on the search path and
	// nothing was installed.
	AlreadyPresent Status = iota

	// Installed means the package manager installed the tool.
	Installed
)

// Installer ensures the prerequisite tooling is present.
type Installer struct {
	run wincmd.Runner

	// settingsDir is where the container engine settings document
	// lives; a fresh engine install writes it there.
	settingsDir string
}

// NewInstaller returns an Installer driving run. settingsDir locates
// the container engine settings document (empty for the default).
func NewInstaller(run wincmd.Runner, settingsDir string) *Installer {
	if settingsDir == "" {
		settingsDir = defaultSettingsDir()
	}
	return &Installer{run: run, settingsDir: settingsDir}
}

// EnsurePackageManager verifies winget is available. Its absence is
// immediately fatal: winget is how everything else gets installed.
func (p *Installer) EnsurePackageManager() error {
	if _, err := p.run.LookPath(packageManager); err != nil {
		return fmt.Errorf("%w: update the App Installer package from the Microsoft Store and rerun", ErrPackageManagerMissing)
	}
	return nil
}

// EnsureTool resolves the tool on the search path and installs it via
// winget only when missing. A non-zero installer exit is fatal to the
// bootstrap.
func (p *Installer) EnsureTool(tool Tool) (Status, error) {
	if _, err := p.run.LookPath(tool.Command); err == nil {
		logger.Infof("%s already present", tool.Command)
		return AlreadyPresent, nil
	}
	logger.Infof("%s not found, installing %s", tool.Command, tool.Package)
	err := p.run.Run(packageManager, "install", "--id", tool.Package, "-e",
		"--silent", "--accept-source-agreements", "--accept-package-agreements")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInstallFailed, tool.Package, err)
	}
	return Installed, nil
}

// ToolsPresent reports whether every prerequisite tool, the package
// manager included, already resolves on the search path.
func (p *Installer) ToolsPresent() bool {
	for _, cmd := range []string{packageManager, Git.Command, Docker.Command} {
		if _, err := p.run.LookPath(cmd); err != nil {
			return false
		}
	}
	return true
}

// EnsureAll runs the full prerequisite pass: package manager, then
// git, then the container engine. A fresh engine install also writes
// the engine settings document so it autostarts at logon without
// popping its window.
func (p *Installer) EnsureAll() error {
	if err := p.EnsurePackageManager(); err != nil {
		return errors.Trace(err)
	}
	if _, err := p.EnsureTool(Git); err != nil {
		return errors.Trace(err)
	}
	status, err := p.EnsureTool(Docker)
	if err != nil {
		return errors.Trace(err)
	}
	if status == Installed {
		if err := WriteEngineSettings(p.settingsDir); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
