// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

//go:build linux || darwin

package launch

import (
	"fmt"
	"os"
	"syscall"
	"testing"
)

func TestStartAVDRunsInOwnProcessGroup(t *testing.T) {
	stub := newSDKStub(t, noDevices)
	writeScript(t, stub.emulator(), fmt.Sprintf("echo \"emulator $*\" >> '%s'\nexec sleep 30\n", stub.calls))

	pid, logPath, err := StartAVD(stub.env(), "Pixel_6_API_34")
	if err != nil {
		t.Fatalf("start avd: %v", err)
	}
	t.Cleanup(func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		_ = os.Remove(logPath)
	})

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != pid {
		t.Fatalf("expected emulator to lead its own group, got pgid %d for pid %d", pgid, pid)
	}
	if pgid == syscall.Getpgrp() {
		t.Fatal("emulator shares the caller's process group")
	}
}
