package checks

import (
	"os"
	"os/exec"

	"github.com/sni/shelltoken"
)

const (
	shellPath = "cmd.exe"
	shellFlag = "/c"
)

// splitCommand tokenizes command lines, shell characters return a ShellCharactersFoundError.
var splitCommand = shelltoken.SplitWindows

func setSysProcAttr(_ *exec.Cmd) {}

func processTimeoutKill(process *os.Process) {
	LogDebug(process.Kill())
}
