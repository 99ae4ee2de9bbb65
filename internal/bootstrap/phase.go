// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package bootstrap

// Phase is the derived run state. It is never persisted as a value:
// every run re-derives it from observable host facts, so the process
// can be killed and restarted at any point without corruption.
type Phase int

const (
	// Unprivileged: the process lacks elevated rights; the only
	// permitted action is the elevation handoff.
	Unprivileged Phase = iota

	// NeedsPrerequisites: elevated, but prerequisite tooling is
	// missing.
	NeedsPrerequisites

	// NeedsVirtualization: tooling present, virtualization not yet
	// confirmed.
	NeedsVirtualization

	// PendingReboot: virtualization was installed but has not been
	// activated by a restart yet.
	PendingReboot

	// Ready: everything confirmed; only the application phase runs.
	Ready
)

func (p Phase) String() string {
	switch p {
	case Unprivileged:
		return "unprivileged"
	case NeedsPrerequisites:
		return "needs-prerequisites"
	case NeedsVirtualization:
		return "needs-virtualization"
	case PendingReboot:
		return "pending-reboot"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Facts are the observable host facts a phase derives from.
type Facts struct {
	Elevated        bool
	MarkerPresent   bool
	ToolsPresent    bool
	FeaturesEnabled bool
}

// DerivePhase maps host facts to a phase. Pure function: probing the
// host and deriving are kept separate so the mapping is testable on
// any platform.
func DerivePhase(f Facts) Phase {
	switch {
	case !f.Elevated:
		return Unprivileged
	case f.MarkerPresent && f.FeaturesEnabled:
		return Ready
	case f.MarkerPresent:
		return PendingReboot
	case !f.ToolsPresent:
		return NeedsPrerequisites
	default:
		return NeedsVirtualization
	}
}

// ToolProber is optionally implemented by the installer to feed
// DerivePhase.
type ToolProber interface {
	ToolsPresent() bool
}

// FeatureProber is optionally implemented by the virtualization
// enabler to feed DerivePhase.
type FeatureProber interface {
	FeaturesEnabled() bool
}

// derivePhase collects what facts the collaborators can supply. It is
// only consulted after the privilege gate, so Elevated is a given; the
// marker fact comes from the caller, which has already probed it;
// missing probers read conservatively as "not present".
func (b *Bootstrap) derivePhase(markerPresent bool) Phase {
	f := Facts{Elevated: true, MarkerPresent: markerPresent}
	if tp, ok := b.installer.(ToolProber); ok {
		f.ToolsPresent = tp.ToolsPresent()
	}
	if fp, ok := b.enabler.(FeatureProber); ok {
		f.FeaturesEnabled = fp.FeaturesEnabled()
	}
	return DerivePhase(f)
}
