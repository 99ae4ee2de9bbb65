// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package stack brings up the monitoring application once the host
// prerequisites are in place: clone the stack repository, render its
// environment file, get the container engine running, wait for it to
// answer, and start the compose stack.
package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/medalpool/hostboot/internal/envfile"
	"github.com/medalpool/hostboot/internal/wincmd"
)

var logger = loggo.GetLogger("hostboot.stack")

const (
	// ErrEngineNotFound means the engine's desktop executable is
	// missing from its install location even though the install
	// phase succeeded. This process cannot recover from that.
	ErrEngineNotFound = errors.ConstError("container engine not found")

	// ErrEngineTimeout means the engine never answered the readiness
	// probe within the wait budget.
	ErrEngineTimeout = errors.ConstError("container engine failed to start")
)

const (
	// DefaultRepoURL is the monitoring stack repository.
	DefaultRepoURL = "https://github.com/medalpool/medal-pool-monitor.git"

	// RepoURLEnvKey overrides DefaultRepoURL.
	RepoURLEnvKey = "HOSTBOOT_REPO_URL"

	checkoutName = "medal-pool-monitor"

	envTemplateName = ".env.template"
	envFileName     = ".env"

	desktopProcess = "Docker Desktop.exe"

	// defaultPollInterval is the fixed readiness poll interval. The
	// engine's startup latency is bimodal: it either answers within
	// tens of seconds or it never will, so there is no backoff.
	defaultPollInterval = 5 * time.Second
)

// Poll budgets. First boot covers the engine's slow one-time
// initialization; the normal budget exists only to fail fast when
// something is actually wrong.
const (
	DefaultPollBudget   = 300 * time.Second
	FirstBootPollBudget = 3600 * time.Second
)

// Config locates the external pieces the bootstrapper touches.
type Config struct {
	// RepoURL is the stack repository to clone.
	RepoURL string

	// CheckoutDir is the fixed per-user checkout location.
	CheckoutDir string

	// GitInstallDir is where git lands when winget installs it; it
	// is appended to the search path when git does not resolve.
	GitInstallDir string

	// EngineBinDir holds the engine CLI binaries.
	EngineBinDir string

	// DesktopExe is the engine's desktop executable.
	DesktopExe string

	// UserName and Home feed the environment file substitutions.
	UserName string
	Home     string

	// PollInterval overrides the readiness poll interval.
	PollInterval time.Duration
}

// DefaultConfig fills in the conventional Windows install locations
// for the given user.
func DefaultConfig(userName, home string) Config {
	return Config{
		RepoURL:       repoURL(),
		CheckoutDir:   filepath.Join(home, checkoutName),
		GitInstallDir: `C:\Program Files\Git\cmd`,
		EngineBinDir:  `C:\Program Files\Docker\Docker\resources\bin`,
		DesktopExe:    `C:\Program Files\Docker\Docker\Docker Desktop.exe`,
		UserName:      userName,
		Home:          home,
	}
}

func repoURL() string {
	if url := os.Getenv(RepoURLEnvKey); url != "" {
		return url
	}
	return DefaultRepoURL
}

// Bootstrapper brings up the application stack.
type Bootstrapper struct {
	cfg   Config
	run   wincmd.Runner
	clock clock.Clock
	probe Probe

	chdir func(string) error
}

// NewBootstrapper returns a Bootstrapper for cfg. A nil probe gets
// the default engine probe.
func NewBootstrapper(cfg Config, run wincmd.Runner, clk clock.Clock, probe Probe) *Bootstrapper {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if probe == nil {
		probe = NewEngineProbe(run)
	}
	return &Bootstrapper{
		cfg:   cfg,
		run:   run,
		clock: clk,
		probe: probe,
		chdir: os.Chdir,
	}
}

// BringUp runs the full application phase. Every failure is fatal to
// the bootstrap except a missing git install directory, which only
// warns: the clone step that follows fails loudly on its own and is
// the real signal.
func (b *Bootstrapper) BringUp(pollBudget time.Duration) error {
	b.ensureGitOnPath()
	if err := b.ensureCheckout(); err != nil {
		return errors.Trace(err)
	}
	if err := b.chdir(b.cfg.CheckoutDir); err != nil {
		return errors.Annotate(err, "entering checkout directory")
	}
	if err := b.renderEnvFile(); err != nil {
		return errors.Trace(err)
	}
	if err := b.ensureEngineAvailable(); err != nil {
		return errors.Trace(err)
	}
	if err := b.launchDesktopIfStopped(); err != nil {
		return errors.Trace(err)
	}
	if err := b.waitForEngine(pollBudget); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("starting compose stack")
	return errors.Annotate(b.run.Run("docker", "compose", "up", "-d"), "starting stack")
}

// ensureGitOnPath extends the search path with git's install
// directory when git does not already resolve.
func (b *Bootstrapper) ensureGitOnPath() {
	if _, err := b.run.LookPath("git"); err == nil {
		return
	}
	if _, err := os.Stat(b.cfg.GitInstallDir); err != nil {
		logger.Warningf("git not found at %s; the clone step will fail if git is unavailable", b.cfg.GitInstallDir)
		return
	}
	appendToPath(b.cfg.GitInstallDir)
}

// ensureCheckout clones the stack repository only when the checkout
// directory does not exist. It never clones over or pulls into an
// existing checkout.
func (b *Bootstrapper) ensureCheckout() error {
	if _, err := os.Stat(b.cfg.CheckoutDir); err == nil {
		logger.Infof("checkout already present at %s", b.cfg.CheckoutDir)
		return nil
	}
	logger.Infof("cloning %s into %s", b.cfg.RepoURL, b.cfg.CheckoutDir)
	err := b.run.Run("git", "clone", b.cfg.RepoURL, b.cfg.CheckoutDir)
	return errors.Annotate(err, "cloning stack repository")
}

func (b *Bootstrapper) renderEnvFile() error {
	logDir, err := envfile.LogDirFor(b.cfg.Home)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(envfile.Render(
		filepath.Join(b.cfg.CheckoutDir, envTemplateName),
		filepath.Join(b.cfg.CheckoutDir, envFileName),
		envfile.Values{UserName: b.cfg.UserName, LogDir: logDir},
	))
}

// ensureEngineAvailable puts the engine CLI on the search path and
// verifies the desktop executable actually exists.
func (b *Bootstrapper) ensureEngineAvailable() error {
	if _, err := os.Stat(b.cfg.DesktopExe); err != nil {
		return fmt.Errorf("%w at %s", ErrEngineNotFound, b.cfg.DesktopExe)
	}
	if _, err := b.run.LookPath("docker"); err != nil {
		appendToPath(b.cfg.EngineBinDir)
	}
	return nil
}

// launchDesktopIfStopped starts the engine's desktop process,
// non-blocking, unless it is already running.
func (b *Bootstrapper) launchDesktopIfStopped() error {
	if b.desktopRunning() {
		logger.Debugf("engine desktop process already running")
		return nil
	}
	logger.Infof("launching %s", b.cfg.DesktopExe)
	return errors.Annotate(b.run.Start(b.cfg.DesktopExe), "launching engine desktop")
}

func (b *Bootstrapper) desktopRunning() bool {
	out, err := b.run.Output("tasklist", "/FI", "IMAGENAME eq "+desktopProcess, "/NH")
	if err != nil {
		return false
	}
	return strings.Contains(out, desktopProcess)
}

// waitForEngine polls the readiness probe on a fixed interval until
// it answers or the budget runs out. Fixed interval, no backoff: a
// healthy engine answers within a handful of attempts, and an
// unhealthy one gains nothing from waiting longer between probes.
func (b *Bootstrapper) waitForEngine(budget time.Duration) error {
	logger.Infof("waiting up to %s for the container engine", budget)
	err := retry.Call(retry.CallArgs{
		Func: b.probe.Check,
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("engine not ready (attempt %d): %v", attempt, err)
		},
		Delay:       b.cfg.PollInterval,
		MaxDuration: budget,
		Clock:       b.clock,
	})
	if err != nil {
		return fmt.Errorf("%w within %s", ErrEngineTimeout, budget)
	}
	return nil
}

func appendToPath(dir string) {
	path := os.Getenv("PATH")
	if path != "" {
		path += string(os.PathListSeparator)
	}
	os.Setenv("PATH", path+dir)
	logger.Debugf("added %s to PATH", dir)
}
