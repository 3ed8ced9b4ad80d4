// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

//go:build unix

package launch

import (
	"os/exec"
	"syscall"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
