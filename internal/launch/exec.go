// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// run executes bin to completion and returns its combined output. On failure
// the error carries the command line and everything the tool printed.
func run(env Env, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(env.context(), bin, args...)
	var buf bytes.Buffer
	stderrLog := newCommandLogWriter(env, bin, args)
	cmd.Stdout = &buf
	cmd.Stderr = io.MultiWriter(&buf, stderrLog)
	err := cmd.Run()
	stderrLog.flush()
	if err != nil {
		return buf.String(), commandError(bin, args, err, buf.String())
	}
	return buf.String(), nil
}

// output is like run but only stdout is returned; stderr goes to the log.
func output(env Env, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(env.context(), bin, args...)
	var out, errOut bytes.Buffer
	stderrLog := newCommandLogWriter(env, bin, args)
	cmd.Stdout = &out
	cmd.Stderr = io.MultiWriter(&errOut, stderrLog)
	err := cmd.Run()
	stderrLog.flush()
	if err != nil {
		return out.String(), commandError(bin, args, err, errOut.String())
	}
	return out.String(), nil
}

func adb(env Env, args ...string) (string, error) {
	return run(env, env.ADB, args...)
}

func commandError(bin string, args []string, err error, out string) error {
	out = strings.TrimSpace(out)
	if out == "" {
		return fmt.Errorf("%s %s failed: %v", bin, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s failed: %v\n%s", bin, strings.Join(args, " "), err, out)
}

// forceStop is the liveness command: it succeeds on any device that accepts
// shell commands, whether or not the package is installed yet.
func forceStop(env Env, packageID string) error {
	_, err := adb(env, "shell", "am", "force-stop", packageID)
	return err
}
