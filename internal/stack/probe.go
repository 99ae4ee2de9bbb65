// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package stack

import (
	"context"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/juju/errors"

	"github.com/medalpool/hostboot/internal/wincmd"
)

// Probe is the engine readiness check: nil means the engine is up
// and answering.
type Probe interface {
	Check() error
}

// apiPinger is the slice of the engine API client the probe uses.
type apiPinger interface {
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// apiPingTimeout bounds a single API ping so a wedged named pipe
// cannot stall the poll loop.
const apiPingTimeout = 5 * time.Second

// engineProbe asks the engine API first and falls back to the CLI.
// The API answers as soon as the engine is really serving; the CLI
// fallback covers hosts where the API endpoint is not reachable from
// this process for any reason.
type engineProbe struct {
	run       wincmd.Runner
	newClient func() (apiPinger, error)
}

// NewEngineProbe returns the default engine readiness probe.
func NewEngineProbe(run wincmd.Runner) Probe {
	return &engineProbe{
		run: run,
		newClient: func() (apiPinger, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		},
	}
}

// Check implements Probe.
func (p *engineProbe) Check() error {
	if cl, err := p.newClient(); err == nil {
		defer cl.Close()
		ctx, cancel := context.WithTimeout(context.Background(), apiPingTimeout)
		defer cancel()
		if _, err := cl.Ping(ctx); err == nil {
			return nil
		}
	}
	_, err := p.run.Output("docker", "info")
	return errors.Annotate(err, "engine not ready")
}
