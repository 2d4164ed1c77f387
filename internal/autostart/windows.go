package autostart

import (
	"fmt"
)

const taskName = "ReposyncDaemon"

type WindowsAutoStarter struct {
	run runner
}

func (w *WindowsAutoStarter) Install(execPath string) error {
	out, err := w.run("schtasks", "/create",
		"/TN", taskName,
		"/TR", fmt.Sprintf(`"%s" watch`, execPath),
		"/SC", "ONLOGON",
		"/F")
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	out, err := w.run("schtasks", "/DELETE", "/TN", taskName, "/F")
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	if _, err := w.run("schtasks", "/Query", "/TN", taskName); err != nil {
		return false, nil
	}

	return true, nil
}
