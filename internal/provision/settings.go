// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

package provision

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

const settingsFile = "settings.json"

// engineSettings is the slice of the container engine's settings
// document the bootstrap cares about: start at logon, and do not pop
// the engine window when doing so.
type engineSettings struct {
	AutoStart               bool `json:"autoStart"`
	OpenUIOnStartupDisabled bool `json:"openUIOnStartupDisabled"`
}

func defaultSettingsDir() string {
	return filepath.Join(os.Getenv("APPDATA"), "Docker")
}

// WriteEngineSettings writes the engine settings document under dir,
// creating the directory as needed and replacing any existing file.
// The document is plain UTF-8 with no byte-order marker. It is only
// invoked after a fresh engine install, so clobbering is safe.
func WriteEngineSettings(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Annotate(err, "creating engine settings directory")
	}
	doc, err := json.MarshalIndent(engineSettings{
		AutoStart:               true,
		OpenUIOnStartupDisabled: true,
	}, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	path := filepath.Join(dir, settingsFile)
	if err := os.WriteFile(path, append(doc, '\n'), 0644); err != nil {
		return errors.Annotate(err, "writing engine settings")
	}
	logger.Infof("engine settings written to %s", path)
	return nil
}
