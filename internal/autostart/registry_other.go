// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !windows

package autostart

import (
	"github.com/juju/errors"
)

// runKeyRegistry exists on non-windows builds only so the package
// compiles; the bootstrap refuses to run on such hosts long before
// the registry is touched.
type runKeyRegistry struct{}

func (runKeyRegistry) SetValue(name, value string) error {
	return errors.NotSupportedf("logon registry on this platform")
}

func (runKeyRegistry) DeleteValue(name string) error {
	return errors.NotSupportedf("logon registry on this platform")
}

func (runKeyRegistry) Value(name string) (string, error) {
	return "", errors.NotSupportedf("logon registry on this platform")
}
