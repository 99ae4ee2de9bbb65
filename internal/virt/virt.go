// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package virt ensures the OS virtualization features the container
// engine depends on (the Linux subsystem and the virtual machine
// platform) are enabled, scheduling a reboot when enabling them.
// A reboot is the one point where the bootstrap cannot simply carry
// on in-process: it writes the continuation marker, registers the
// logon resume entry and restarts the host, trusting the resumed run
// to pick up from the application phase.
package virt

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/medalpool/hostboot/internal/wincmd"
)

var logger = loggo.GetLogger("hostboot.virt")

// ErrFeatureEnableFailed means the feature install command failed;
// the bootstrap aborts, nothing is marked complete.
const ErrFeatureEnableFailed = errors.ConstError("enabling virtualization failed")

// Features required by the container engine's WSL2 backend.
var features = []string{
	"Microsoft-Windows-Subsystem-Linux",
	"VirtualMachinePlatform",
}

// defaultQueryTimeout bounds a single feature state query. A query
// that hangs past it is treated as "not installed": a redundant
// enable attempt beats silently skipping a required feature.
const defaultQueryTimeout = 5 * time.Second

// Result says how an Ensure call resolved.
type Result int

const (
	// Ready means every feature is already enabled; continue.
	Ready Result = iota

	// RebootScheduled means features were installed and a restart is
	// under way; the caller must exit 0 without further work.
	RebootScheduled
)

// Markers is what the enabler persists before requesting a reboot.
type Markers interface {
	// CreateMarker writes the continuation marker.
	CreateMarker() error

	// SetResume registers the logon resume entry.
	SetResume() error
}

// Enabler probes and enables the virtualization features.
type Enabler struct {
	run          wincmd.Runner
	markers      Markers
	queryTimeout time.Duration
}

// NewEnabler returns an Enabler driving run and persisting through
// markers before any reboot.
func NewEnabler(run wincmd.Runner, markers Markers) *Enabler {
	return &Enabler{
		run:          run,
		markers:      markers,
		queryTimeout: defaultQueryTimeout,
	}
}

// Ensure checks the required features. When all are enabled it writes
// the continuation marker (a safety net for hosts that were already
// fully set up) and returns Ready. Otherwise it enables the missing
// ones, persists the marker and resume entry, requests a full restart
// and returns RebootScheduled.
func (e *Enabler) Ensure() (Result, error) {
	var missing []string
	for _, f := range features {
		if !e.featureEnabled(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		logger.Infof("virtualization features already enabled")
		if err := e.markers.CreateMarker(); err != nil {
			return 0, errors.Trace(err)
		}
		return Ready, nil
	}

	for _, f := range missing {
		logger.Infof("enabling feature %s", f)
		err := e.run.Run("dism.exe", "/online", "/Enable-Feature",
			"/FeatureName:"+f, "/All", "/NoRestart")
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrFeatureEnableFailed, f, err)
		}
	}

	// The features are installing but will not be active until the
	// host restarts. Persist enough state for the resumed run to skip
	// straight past this phase, then reboot.
	if err := e.markers.CreateMarker(); err != nil {
		return 0, errors.Trace(err)
	}
	if err := e.markers.SetResume(); err != nil {
		return 0, errors.Trace(err)
	}
	logger.Infof("restarting host to activate virtualization features")
	if err := e.run.Run("shutdown.exe", "-f", "-r", "-t", "5"); err != nil {
		return 0, errors.Annotate(err, "requesting restart")
	}
	return RebootScheduled, nil
}

// FeaturesEnabled reports whether every required feature is enabled.
func (e *Enabler) FeaturesEnabled() bool {
	for _, f := range features {
		if !e.featureEnabled(f) {
			return false
		}
	}
	return true
}

// featureEnabled queries one feature's state with a bounded wait.
// Any failure, including a hung query, reads as disabled.
func (e *Enabler) featureEnabled(name string) bool {
	out, err := e.run.OutputWithTimeout(e.queryTimeout, "dism.exe",
		"/online", "/Get-FeatureInfo", "/FeatureName:"+name)
	if err != nil {
		logger.Debugf("feature %s query failed, assuming disabled: %v", name, err)
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == "State" {
			return strings.TrimSpace(parts[1]) == "Enabled"
		}
	}
	return false
}
