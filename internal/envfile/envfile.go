// Copyright 2025 Medal Pool contributors
// Licensed under the AGPLv3, see LICENCE file for details.

// Package envfile renders the stack's environment file from its
// template. Rendering is a line-by-line rewrite: the two recognized
// keys get host-derived values, every other line passes through
// untouched. The output is disposable and regenerated on every run;
// the template is the only source of truth.
package envfile

import (
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("hostboot.envfile")

// The recognized template keys.
const (
	userKey   = "HOST_USER"
	logDirKey = "VRCHAT_LOG_DIR"
)

// vrchatLogSuffix is where VRChat writes logs, relative to the user's
// home directory, in the engine's mount notation.
const vrchatLogSuffix = "/AppData/LocalLow/VRChat/VRChat"

// Values are the host-derived substitutions.
type Values struct {
	// UserName replaces the HOST_USER key's value.
	UserName string

	// LogDir replaces the VRCHAT_LOG_DIR key's value. Derive it with
	// LogDirFor.
	LogDir string
}

// LogDirFor translates a Windows home directory into the engine-side
// mount path of the VRChat log directory.
func LogDirFor(home string) (string, error) {
	mnt, err := HostMntPath(home)
	if err != nil {
		return "", errors.Trace(err)
	}
	return mnt + vrchatLogSuffix, nil
}

// HostMntPath rewrites an absolute Windows path into the container
// engine's drive-mount form: the drive letter lowercased under
// /host_mnt, separators forward-slashed.
func HostMntPath(path string) (string, error) {
	if len(path) < 2 || path[1] != ':' {
		return "", errors.NotValidf("windows path %q", path)
	}
	drive := strings.ToLower(path[:1])
	rest := strings.ReplaceAll(path[2:], `\`, "/")
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return "", errors.NotValidf("windows path %q", path)
	}
	return "/host_mnt/" + drive + rest, nil
}

// Render reads the template, substitutes the recognized keys and
// writes the result to outPath, fully replacing any previous file.
func Render(templatePath, outPath string, values Values) error {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return errors.Annotate(err, "reading environment template")
	}
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, userKey+"="):
			lines[i] = userKey + "=" + values.UserName
		case strings.HasPrefix(line, logDirKey+"="):
			lines[i] = logDirKey + "=" + values.LogDir
		}
	}
	out := strings.Join(lines, "\n")
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return errors.Annotate(err, "writing environment file")
	}
	logger.Infof("environment file written to %s", outPath)
	return nil
}
