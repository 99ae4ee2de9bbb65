// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package elevation

import (
	"os/exec"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

// isElevated reports whether the current process token carries
// administrator rights.
func isElevated() (bool, error) {
	return windows.GetCurrentProcessToken().IsElevated(), nil
}

// relaunchElevated starts exe under a UAC prompt via the "runas" verb.
// Windows Terminal hosts the elevated console when available; older
// hosts fall back to launching the executable directly in a classic
// console window.
func relaunchElevated(exe string) error {
	file := exe
	args := ""
	if wt, err := exec.LookPath("wt.exe"); err == nil {
		file = wt
		args = `"` + exe + `"`
	}
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return errors.Trace(err)
	}
	filep, err := windows.UTF16PtrFromString(file)
	if err != nil {
		return errors.Trace(err)
	}
	var argsp *uint16
	if args != "" {
		if argsp, err = windows.UTF16PtrFromString(args); err != nil {
			return errors.Trace(err)
		}
	}
	err = windows.ShellExecute(0, verb, filep, argsp, nil, windows.SW_NORMAL)
	return errors.Annotatef(err, "ShellExecute %q", file)
}
