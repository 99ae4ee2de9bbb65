// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package stack

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type stackSuite struct {
	testing.IsolationSuite

	run   *fakeRunner
	probe *fakeProbe
	cfg   Config

	chdirs []string
}

var _ = gc.Suite(&stackSuite{})

const desktopProcessLine = "Docker Desktop.exe               1234 Console"

// fakeRunner resolves commands from present, serves tasklist output
// and records invocations.
type fakeRunner struct {
	present map[string]bool
	taskOut string
	calls   [][]string
	started []string
	runErr  map[string]error

	// onClone runs when git clone is invoked, standing in for the
	// checkout appearing on disk.
	onClone func()
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.present[file] {
		return `C:\fake\` + file, nil
	}
	return "", errors.NotFoundf("executable %q", file)
}

func (f *fakeRunner) Run(name string, arg ...string) error {
	f.calls = append(f.calls, append([]string{name}, arg...))
	if name == "git" && len(arg) > 0 && arg[0] == "clone" && f.onClone != nil {
		f.onClone()
	}
	return f.runErr[name]
}

func (f *fakeRunner) Output(name string, arg ...string) (string, error) {
	if name == "tasklist" {
		return f.taskOut, nil
	}
	return "", f.Run(name, arg...)
}

func (f *fakeRunner) OutputWithTimeout(_ time.Duration, name string, arg ...string) (string, error) {
	return f.Output(name, arg...)
}

func (f *fakeRunner) Start(name string, arg ...string) error {
	f.started = append(f.started, name)
	return nil
}

func (f *fakeRunner) composeInvoked() bool {
	for _, call := range f.calls {
		if call[0] == "docker" && len(call) > 1 && call[1] == "compose" {
			return true
		}
	}
	return false
}

func (f *fakeRunner) cloneInvoked() bool {
	for _, call := range f.calls {
		if call[0] == "git" && call[1] == "clone" {
			return true
		}
	}
	return false
}

// fakeProbe fails a fixed number of times, then succeeds.
type fakeProbe struct {
	failures int
	calls    int
}

func (p *fakeProbe) Check() error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("engine not ready")
	}
	return nil
}

func (s *stackSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.PatchEnvironment("PATH", os.Getenv("PATH"))

	checkout := filepath.Join(c.MkDir(), "medal-pool-monitor")
	c.Assert(os.MkdirAll(checkout, 0755), jc.ErrorIsNil)
	writeTemplate(c, checkout)

	desktop := filepath.Join(c.MkDir(), "Docker Desktop.exe")
	c.Assert(os.WriteFile(desktop, []byte("exe"), 0755), jc.ErrorIsNil)

	s.run = &fakeRunner{
		present: map[string]bool{"git": true, "docker": true},
		taskOut: desktopProcessLine,
		runErr:  make(map[string]error),
	}
	s.probe = &fakeProbe{}
	s.cfg = Config{
		RepoURL:      "https://example.com/medal-pool-monitor.git",
		CheckoutDir:  checkout,
		EngineBinDir: `C:\Program Files\Docker\Docker\resources\bin`,
		DesktopExe:   desktop,
		UserName:     "alice",
		Home:         `C:\Users\Alice`,
		PollInterval: 5 * time.Second,
	}
	s.chdirs = nil
}

func writeTemplate(c *gc.C, dir string) {
	tmpl := "HOST_USER=placeholder\nVRCHAT_LOG_DIR=placeholder\nGRAFANA_PORT=3000\n"
	err := os.WriteFile(filepath.Join(dir, ".env.template"), []byte(tmpl), 0644)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *stackSuite) newBootstrapper(c *gc.C) *Bootstrapper {
	b := NewBootstrapper(s.cfg, s.run, testclock.NewDilatedWallClock(time.Millisecond), s.probe)
	b.chdir = func(dir string) error {
		s.chdirs = append(s.chdirs, dir)
		return nil
	}
	return b
}

func (s *stackSuite) TestBringUpHappyPath(c *gc.C) {
	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(s.run.cloneInvoked(), jc.IsFalse)
	c.Check(s.chdirs, gc.DeepEquals, []string{s.cfg.CheckoutDir})
	c.Check(s.run.started, gc.HasLen, 0)
	c.Check(s.probe.calls, gc.Equals, 1)
	c.Check(s.run.composeInvoked(), jc.IsTrue)

	raw, err := os.ReadFile(filepath.Join(s.cfg.CheckoutDir, ".env"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(raw), gc.Equals, "HOST_USER=alice\n"+
		"VRCHAT_LOG_DIR=/host_mnt/c/Users/Alice/AppData/LocalLow/VRChat/VRChat\n"+
		"GRAFANA_PORT=3000\n")
}

func (s *stackSuite) TestBringUpTwiceSameEnvFile(c *gc.C) {
	b := s.newBootstrapper(c)
	c.Assert(b.BringUp(DefaultPollBudget), jc.ErrorIsNil)
	first, err := os.ReadFile(filepath.Join(s.cfg.CheckoutDir, ".env"))
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(b.BringUp(DefaultPollBudget), jc.ErrorIsNil)
	second, err := os.ReadFile(filepath.Join(s.cfg.CheckoutDir, ".env"))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(string(second), gc.Equals, string(first))
	c.Check(s.run.cloneInvoked(), jc.IsFalse)
}

func (s *stackSuite) TestClonesWhenCheckoutMissing(c *gc.C) {
	missing := filepath.Join(c.MkDir(), "medal-pool-monitor")
	s.cfg.CheckoutDir = missing
	s.run.onClone = func() {
		c.Assert(os.MkdirAll(missing, 0755), jc.ErrorIsNil)
		writeTemplate(c, missing)
	}

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.run.cloneInvoked(), jc.IsTrue)
}

func (s *stackSuite) TestCloneFailureIsFatal(c *gc.C) {
	s.cfg.CheckoutDir = filepath.Join(c.MkDir(), "medal-pool-monitor")
	s.run.runErr["git"] = errors.New("exit status 128")

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, gc.ErrorMatches, "cloning stack repository:.*")
	c.Check(s.run.composeInvoked(), jc.IsFalse)
}

func (s *stackSuite) TestEngineNotFoundIsFatal(c *gc.C) {
	s.cfg.DesktopExe = filepath.Join(c.MkDir(), "absent.exe")

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIs, ErrEngineNotFound)
	c.Check(s.probe.calls, gc.Equals, 0)
	c.Check(s.run.composeInvoked(), jc.IsFalse)
}

func (s *stackSuite) TestLaunchesDesktopWhenNotRunning(c *gc.C) {
	s.run.taskOut = "INFO: No tasks are running which match the specified criteria."

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.run.started, gc.DeepEquals, []string{s.cfg.DesktopExe})
}

func (s *stackSuite) TestPollRetriesUntilReady(c *gc.C) {
	s.probe.failures = 3

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)

	// Three failed probes, then success on the fourth; the stack
	// launches afterwards.
	c.Check(s.probe.calls, gc.Equals, 4)
	c.Check(s.run.composeInvoked(), jc.IsTrue)
}

func (s *stackSuite) TestPollTimesOut(c *gc.C) {
	s.probe.failures = 1 << 30

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIs, ErrEngineTimeout)

	// Polled to the budget at a fixed interval, and never launched
	// the stack.
	c.Check(s.probe.calls > 2, jc.IsTrue)
	c.Check(s.run.composeInvoked(), jc.IsFalse)
}

func (s *stackSuite) TestGitPathWarningIsNotFatal(c *gc.C) {
	delete(s.run.present, "git")
	s.cfg.GitInstallDir = filepath.Join(c.MkDir(), "absent")

	b := s.newBootstrapper(c)
	// Checkout already exists, so the missing git never bites.
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *stackSuite) TestEngineBinDirAddedToPath(c *gc.C) {
	delete(s.run.present, "docker")
	before := os.Getenv("PATH")

	b := s.newBootstrapper(c)
	err := b.BringUp(DefaultPollBudget)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(os.Getenv("PATH"), gc.Equals, before+string(os.PathListSeparator)+s.cfg.EngineBinDir)
}

func (s *stackSuite) TestDefaultConfig(c *gc.C) {
	cfg := DefaultConfig("alice", `C:\Users\Alice`)
	c.Check(cfg.RepoURL, gc.Equals, DefaultRepoURL)
	c.Check(cfg.CheckoutDir, gc.Equals, filepath.Join(`C:\Users\Alice`, "medal-pool-monitor"))
	c.Check(cfg.UserName, gc.Equals, "alice")
}

func (s *stackSuite) TestRepoURLOverride(c *gc.C) {
	s.PatchEnvironment(RepoURLEnvKey, "https://example.com/fork.git")
	cfg := DefaultConfig("alice", `C:\Users\Alice`)
	c.Check(cfg.RepoURL, gc.Equals, "https://example.com/fork.git")
}
