// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sentinel manages the continuation marker: a durable flag file
// whose presence means host prerequisites and virtualization have
// already been validated, so later runs skip straight to bringing up
// the application stack. Presence is decided by existence alone; the
// content only records whether the engine's first-ever initialization
// is still outstanding. Normal operation never removes the file;
// deleting it by hand forces a full re-validation on the next run.
package sentinel

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("hostboot.sentinel")

const markerName = "hostboot-setup-complete"

// firstStartToken is the marker content between setup completing and
// the first successful stack bring-up. It survives the reboot and the
// elevation handoff, so the resumed run can tell it apart from a
// routine rerun.
const firstStartToken = "engine-first-start-pending"

// Marker is the continuation marker file.
type Marker struct {
	path string
}

// New returns the marker rooted in dir, or the user temp directory
// when dir is empty.
func New(dir string) *Marker {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Marker{path: filepath.Join(dir, markerName)}
}

// Path returns the marker file location.
func (m *Marker) Path() string {
	return m.path
}

// Present reports whether the marker exists.
func (m *Marker) Present() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Create writes the marker, recording that the engine's first start is
// still ahead. Re-creating an existing marker is a no-op as far as
// callers are concerned.
func (m *Marker) Create() error {
	if err := os.WriteFile(m.path, []byte(firstStartToken+"\n"), 0644); err != nil {
		return errors.Annotate(err, "writing continuation marker")
	}
	logger.Infof("continuation marker written to %s", m.path)
	return nil
}

// FirstStartPending reports whether the marker records an engine first
// start that has not completed yet. An absent marker, or one written by
// hand with other content, reads as not pending.
func (m *Marker) FirstStartPending() bool {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == firstStartToken
}

// MarkFirstStartDone blanks the marker content once the stack has come
// up, keeping the file itself in place.
func (m *Marker) MarkFirstStartDone() error {
	if err := os.WriteFile(m.path, []byte{}, 0644); err != nil {
		return errors.Annotate(err, "updating continuation marker")
	}
	return nil
}
