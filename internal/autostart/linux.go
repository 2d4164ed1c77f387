package autostart

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reposync/internal/util"
	"text/template"
)

const unitFile = serviceName + ".service"

var serviceTemplate = template.Must(template.New("service").Parse(`[Unit]
Description=Reposync Remote Sync Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart="{{.ExecPath}}" watch
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

type LinuxAutoStarter struct {
	run runner
	// unitDir overrides ~/.config/systemd/user.
	unitDir string
}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	dir := l.unitDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	return filepath.Join(dir, unitFile), nil
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := serviceTemplate.Execute(&buf, map[string]string{"ExecPath": execPath}); err != nil {
		return fmt.Errorf("failed to render service file: %w", err)
	}

	if err := util.AtomicWrite(path, &buf); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	return runAll(l.run, [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", unitFile},
		{"systemctl", "--user", "start", unitFile},
	})
}

func (l *LinuxAutoStarter) Uninstall() error {
	for _, args := range [][]string{
		{"systemctl", "--user", "stop", unitFile},
		{"systemctl", "--user", "disable", unitFile},
	} {
		_, _ = l.run(args[0], args[1:]...)
	}

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	return util.RemoveIfExists(path)
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
