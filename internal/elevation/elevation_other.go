// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !windows

package elevation

import (
	"github.com/juju/errors"
)

func isElevated() (bool, error) {
	return false, errors.NotSupportedf("process elevation on this platform")
}

func relaunchElevated(exe string) error {
	return errors.NotSupportedf("elevated relaunch on this platform")
}
