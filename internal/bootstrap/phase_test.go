// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package bootstrap_test

import (
	"github.com/juju/testing"
	gc "gopkg.in/check.v1"

	"github.com/medalpool/hostboot/internal/bootstrap"
)

type phaseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&phaseSuite{})

func (s *phaseSuite) TestDerivePhase(c *gc.C) {
	for i, t := range []struct {
		facts bootstrap.Facts
		want  bootstrap.Phase
	}{{
		facts: bootstrap.Facts{},
		want:  bootstrap.Unprivileged,
	}, {
		facts: bootstrap.Facts{Elevated: true},
		want:  bootstrap.NeedsPrerequisites,
	}, {
		facts: bootstrap.Facts{Elevated: true, ToolsPresent: true},
		want:  bootstrap.NeedsVirtualization,
	}, {
		facts: bootstrap.Facts{Elevated: true, MarkerPresent: true},
		want:  bootstrap.PendingReboot,
	}, {
		facts: bootstrap.Facts{Elevated: true, MarkerPresent: true, FeaturesEnabled: true},
		want:  bootstrap.Ready,
	}, {
		// The marker wins over live tool state: a host that lost a
		// tool after validation still derives from the marker.
		facts: bootstrap.Facts{Elevated: true, MarkerPresent: true, FeaturesEnabled: true, ToolsPresent: false},
		want:  bootstrap.Ready,
	}} {
		c.Check(bootstrap.DerivePhase(t.facts), gc.Equals, t.want, gc.Commentf("case %d", i))
	}
}

func (s *phaseSuite) TestPhaseString(c *gc.C) {
	c.Check(bootstrap.Unprivileged.String(), gc.Equals, "unprivileged")
	c.Check(bootstrap.NeedsPrerequisites.String(), gc.Equals, "needs-prerequisites")
	c.Check(bootstrap.NeedsVirtualization.String(), gc.Equals, "needs-virtualization")
	c.Check(bootstrap.PendingReboot.String(), gc.Equals, "pending-reboot")
	c.Check(bootstrap.Ready.String(), gc.Equals, "ready")
	c.Check(bootstrap.Phase(99).String(), gc.Equals, "unknown")
}
