//go:build !windows

package checks

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sni/shelltoken"
)

const (
	shellPath = "/bin/sh"
	shellFlag = "-c"
)

// splitCommand tokenizes command lines, shell characters return a ShellCharactersFoundError.
var splitCommand = shelltoken.SplitLinux

func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

func processTimeoutKill(process *os.Process) {
	go func(pid int) {
		// kill the process itself and the whole process group
		LogDebug(syscall.Kill(-pid, syscall.SIGTERM))
		time.Sleep(1 * time.Second)

		LogDebug(syscall.Kill(-pid, syscall.SIGKILL))
	}(process.Pid)
}
