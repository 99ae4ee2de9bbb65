// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package autostart manages the logon resume entry: a single named
// value under the current user's run-on-logon registry key that makes
// Windows re-invoke the staged bootstrap after a reboot. The entry is
// removed unconditionally at the start of every run and written back
// only when a reboot is about to be requested, so a failure in a later
// phase can never leave the host resuming forever.
package autostart

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("hostboot.autostart")

// ValueName is the name of the run-on-logon value owned by hostboot.
const ValueName = "HostbootResume"

// Registry is the slice of the Windows registry the resume entry
// needs: string values under the current user's Run key.
type Registry interface {
	// SetValue writes a string value, creating or replacing it.
	SetValue(name, value string) error

	// DeleteValue removes a value. Deleting an absent value is not
	// an error.
	DeleteValue(name string) error

	// Value reads a string value back. Absent values return an error
	// satisfying errors.IsNotFound.
	Value(name string) (string, error)
}

// Entry is the logon resume entry.
type Entry struct {
	reg Registry
}

// NewEntry returns an Entry backed by reg. Pass nil to use the real
// per-user Run key (windows only).
func NewEntry(reg Registry) *Entry {
	if reg == nil {
		reg = runKeyRegistry{}
	}
	return &Entry{reg: reg}
}

// Clear removes the resume entry. It is called at the very start of
// every run, present or not.
func (e *Entry) Clear() error {
	if err := e.reg.DeleteValue(ValueName); err != nil {
		return errors.Annotate(err, "clearing logon resume entry")
	}
	logger.Debugf("logon resume entry cleared")
	return nil
}

// Set writes the resume entry so the next logon runs command.
func (e *Entry) Set(command string) error {
	if err := e.reg.SetValue(ValueName, command); err != nil {
		return errors.Annotate(err, "writing logon resume entry")
	}
	logger.Infof("logon resume entry set to %q", command)
	return nil
}
