// Package install hands extracted wheels to the package installer.
package install

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/model"
)

// Installer installs the wheels at paths and reports the installer's exit
// status. A non-nil error means the installer could not be run at all.
type Installer interface {
	Install(ctx context.Context, paths []string) (int, error)
}

// PipInstaller runs "<python> -m pip install".
type PipInstaller struct {
	Python string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

func (p *PipInstaller) command(paths []string) []string {
	args := []string{"-m", "pip", "--disable-pip-version-check", "install"}
	args = append(args, paths...)
	return append(args, p.Args...)
}

func (p *PipInstaller) Install(ctx context.Context, paths []string) (int, error) {
	args := p.command(paths)
	cmd := exec.CommandContext(ctx, p.Python, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	logrus.WithFields(logrus.Fields{"component": "install", "python": p.Python, "wheels": len(paths)}).Debug("running pip")
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return 0, model.Wrap(model.ErrInstall, err, "run %s -m pip", p.Python)
}
