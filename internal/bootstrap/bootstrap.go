// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bootstrap is the orchestration state machine. A single run
// is strictly sequential: clear the logon resume entry, pass the
// privilege gate, consult the continuation marker, install
// prerequisites and enable virtualization when the marker is absent
// (possibly ending in a reboot), then bring up the application stack.
// No state lives in the process between invocations; everything is
// re-derived from the host, and the only persisted decisions are the
// continuation marker and the resume entry.
package bootstrap

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/medalpool/hostboot/internal/elevation"
	"github.com/medalpool/hostboot/internal/stack"
	"github.com/medalpool/hostboot/internal/virt"
)

var logger = loggo.GetLogger("hostboot.bootstrap")

// Gate is the privilege gate.
type Gate interface {
	RunWithElevation() (elevation.Result, error)
}

// ResumeEntry is the logon resume entry.
type ResumeEntry interface {
	Clear() error
}

// Guard is the continuation marker consult. FirstStartPending reports
// whether the engine's slow first-ever initialization is still ahead,
// which a marker-present run needs to pick its poll budget.
type Guard interface {
	Present() bool
	FirstStartPending() bool
	MarkFirstStartDone() error
}

// Installer is the prerequisite phase.
type Installer interface {
	EnsureAll() error
}

// Enabler is the virtualization phase.
type Enabler interface {
	Ensure() (virt.Result, error)
}

// StackBootstrapper is the application phase.
type StackBootstrapper interface {
	BringUp(pollBudget time.Duration) error
}

// Bootstrap wires the phases together.
type Bootstrap struct {
	gate      Gate
	resume    ResumeEntry
	guard     Guard
	installer Installer
	enabler   Enabler
	stack     StackBootstrapper
}

// New returns a Bootstrap over the given collaborators.
func New(gate Gate, resume ResumeEntry, guard Guard, installer Installer, enabler Enabler, st StackBootstrapper) *Bootstrap {
	return &Bootstrap{
		gate:      gate,
		resume:    resume,
		guard:     guard,
		installer: installer,
		enabler:   enabler,
		stack:     st,
	}
}

// Run executes one bootstrap invocation. A nil return means either
// the stack is up, or this invocation intentionally handed off (to an
// elevated relaunch, or to the post-reboot resume); both exit 0.
func (b *Bootstrap) Run() error {
	// Self-cleaning: the resume entry registered before a reboot must
	// go away at the very start of every invocation, elevated or not.
	// Run key deletion under HKCU needs no elevation, and clearing
	// before the gate means a declined elevation prompt cannot leave an
	// endless logon resume loop behind.
	if err := b.resume.Clear(); err != nil {
		return errors.Trace(err)
	}

	res, err := b.gate.RunWithElevation()
	if err != nil {
		return errors.Trace(err)
	}
	if res == elevation.Relaunched {
		logger.Infof("handed off to elevated instance")
		return nil
	}

	markerPresent := b.guard.Present()
	logger.Infof("derived phase: %s", b.derivePhase(markerPresent))

	firstBoot := !markerPresent
	if markerPresent {
		if b.guard.FirstStartPending() {
			// Resumed after the virtualization reboot: the engine still
			// has its slow first-ever initialization ahead of it.
			firstBoot = true
			logger.Infof("setup complete, engine first start still pending")
		} else {
			logger.Infof("setup already complete, skipping to application phase")
		}
	} else {
		if err := b.installer.EnsureAll(); err != nil {
			return errors.Trace(err)
		}
		vres, err := b.enabler.Ensure()
		if err != nil {
			return errors.Trace(err)
		}
		if vres == virt.RebootScheduled {
			logger.Infof("rebooting to activate virtualization; setup resumes at next logon")
			return nil
		}
	}

	budget := stack.DefaultPollBudget
	if firstBoot {
		budget = stack.FirstBootPollBudget
	}
	if err := b.stack.BringUp(budget); err != nil {
		return errors.Trace(err)
	}
	if firstBoot {
		// A failed or timed-out bring-up leaves the pending state in
		// place, so a later retry gets the generous budget again.
		if err := b.guard.MarkFirstStartDone(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
