// Package autostart registers the sync daemon to start at login.
package autostart

import (
	"fmt"
	"os/exec"
	"runtime"
)

const serviceName = "reposync"

type AutoStarter interface {
	Install(execPath string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

// runner executes an external command and returns its combined output.
type runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{run: execRunner}
	case "linux":
		return &LinuxAutoStarter{run: execRunner}
	default:
		return &UnsupportedAutoStarter{}
	}
}

func runAll(run runner, cmds [][]string) error {
	for _, args := range cmds {
		if out, err := run(args[0], args[1:]...); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ string) error {
	return fmt.Errorf("autostart is not supported on %s", runtime.GOOS)
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
