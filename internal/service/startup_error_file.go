package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StartupErrorFile is the name of the file WriteStartupErrorFile writes.
const StartupErrorFile = "startup-error.log"

// WriteStartupErrorFile records err in logDir/startup-error.log, replacing
// any earlier content, so that failures before the logger is up are visible
// when running unattended. It returns the path written.
func WriteStartupErrorFile(logDir string, err error) (string, error) {
	if mkErr := os.MkdirAll(logDir, 0o755); mkErr != nil {
		return "", mkErr
	}
	path := filepath.Join(logDir, StartupErrorFile)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] STARTUP ERROR\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "args: %s\n", strings.Join(os.Args, " "))
	fmt.Fprintf(&b, "%v\n", err)

	if wErr := os.WriteFile(path, []byte(b.String()), 0o644); wErr != nil {
		return "", wErr
	}
	return path, nil
}
