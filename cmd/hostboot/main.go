// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Command hostboot takes a bare Windows host to a running medal pool
// monitoring stack: it installs the package-managed prerequisites,
// enables the virtualization subsystem (rebooting and resuming at
// logon when required), and brings up the compose stack once the
// container engine answers.
package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	jujuos "github.com/juju/os/v2"
	"github.com/juju/utils/v4"

	"github.com/medalpool/hostboot/internal/autostart"
	"github.com/medalpool/hostboot/internal/bootstrap"
	"github.com/medalpool/hostboot/internal/elevation"
	"github.com/medalpool/hostboot/internal/provision"
	"github.com/medalpool/hostboot/internal/sentinel"
	"github.com/medalpool/hostboot/internal/stack"
	"github.com/medalpool/hostboot/internal/virt"
	"github.com/medalpool/hostboot/internal/wincmd"
)

// loggingConfigEnvKey configures loggo at startup, in the usual
// "<module>=<level>" form.
const loggingConfigEnvKey = "HOSTBOOT_LOGGING_CONFIG"

var logger = loggo.GetLogger("hostboot.cmd")

var hostOS = jujuos.HostOS

func init() {
	if err := loggo.ConfigureLoggers(os.Getenv(loggingConfigEnvKey)); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR parsing %s: %s\n\n", loggingConfigEnvKey, err)
	}
}

func main() {
	os.Exit(Main(os.Args))
}

// Main runs the bootstrap command and returns the process exit code:
// 0 for success or an intentional handoff (elevation relaunch,
// reboot), non-zero for any fatal failure.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return cmd.Main(&bootstrapCommand{}, ctx, args[1:])
}

const bootstrapDoc = `
hostboot prepares a Windows host for the medal pool monitoring stack.
It installs git and the container engine through winget, enables the
Linux subsystem and virtual machine platform (restarting the host and
resuming automatically at the next logon when those were missing),
then clones the stack repository, renders its environment file, waits
for the container engine and starts the compose stack.

Rerunning hostboot is always safe: every phase detects work already
done and skips it.
`

type bootstrapCommand struct {
	cmd.CommandBase
}

func (c *bootstrapCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "hostboot",
		Purpose: "bootstrap a Windows host and start the monitoring stack",
		Doc:     strings.TrimSpace(bootstrapDoc),
	}
}

func (c *bootstrapCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

func (c *bootstrapCommand) Run(ctx *cmd.Context) error {
	if hostOS() != jujuos.Windows {
		return errors.Errorf("hostboot only supports Windows hosts")
	}
	b, err := newBootstrap()
	if err != nil {
		return errors.Trace(err)
	}
	return b.Run()
}

// newBootstrap wires the real collaborators.
func newBootstrap() (*bootstrap.Bootstrap, error) {
	run := wincmd.New()
	gate := elevation.NewGate("")
	marker := sentinel.New("")
	resume := autostart.NewEntry(nil)

	userName, err := currentUserName()
	if err != nil {
		return nil, errors.Trace(err)
	}
	home := utils.Home()
	logger.Debugf("bootstrapping for user %q, home %q", userName, home)

	installer := provision.NewInstaller(run, "")
	enabler := virt.NewEnabler(run, &rebootMarkers{
		gate:   gate,
		marker: marker,
		resume: resume,
	})
	st := stack.NewBootstrapper(stack.DefaultConfig(userName, home), run, clock.WallClock, nil)

	return bootstrap.New(gate, resume, marker, installer, enabler, st), nil
}

// currentUserName returns the bare user name, with any DOMAIN\ prefix
// stripped.
func currentUserName() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", errors.Annotate(err, "querying current user")
	}
	return stripDomain(u.Username), nil
}

func stripDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// rebootMarkers is what the virtualization enabler persists before it
// restarts the host: the continuation marker, and a resume entry that
// re-invokes the staged executable at the next logon.
type rebootMarkers struct {
	gate   *elevation.Gate
	marker *sentinel.Marker
	resume *autostart.Entry
}

func (m *rebootMarkers) CreateMarker() error {
	return errors.Trace(m.marker.Create())
}

func (m *rebootMarkers) SetResume() error {
	staged, err := m.gate.Stage()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(m.resume.Set(`"` + staged + `"`))
}
