// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package autostart

import (
	"github.com/juju/errors"
	"golang.org/x/sys/windows/registry"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

// runKeyRegistry reads and writes string values under the current
// user's run-on-logon key.
type runKeyRegistry struct{}

func (runKeyRegistry) openRunKey(access uint32) (registry.Key, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, access)
	if err != nil {
		return 0, errors.Annotatef(err, "opening HKCU\\%s", runKeyPath)
	}
	return k, nil
}

func (r runKeyRegistry) SetValue(name, value string) error {
	k, err := r.openRunKey(registry.SET_VALUE)
	if err != nil {
		return errors.Trace(err)
	}
	defer k.Close()
	return errors.Trace(k.SetStringValue(name, value))
}

func (r runKeyRegistry) DeleteValue(name string) error {
	k, err := r.openRunKey(registry.SET_VALUE)
	if err != nil {
		return errors.Trace(err)
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && err != registry.ErrNotExist {
		return errors.Trace(err)
	}
	return nil
}

func (r runKeyRegistry) Value(name string) (string, error) {
	k, err := r.openRunKey(registry.QUERY_VALUE)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer k.Close()
	v, _, err := k.GetStringValue(name)
	if err == registry.ErrNotExist {
		return "", errors.NotFoundf("logon resume entry %q", name)
	}
	if err != nil {
		return "", errors.Trace(err)
	}
	return v, nil
}
