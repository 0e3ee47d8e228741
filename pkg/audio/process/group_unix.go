//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func ownGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd.Process, unix.SIGKILL) }
}

// signalGroup sends sig to the process group led by p.
func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func interruptGroup(p *os.Process) error { return signalGroup(p, unix.SIGINT) }

func killGroup(p *os.Process) error { return signalGroup(p, unix.SIGKILL) }
