// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// ListAVDs returns the names printed by `emulator -list-avds`.
func ListAVDs(env Env) ([]string, error) {
	_, span := startSpan(env, "launch.ListAVDs")
	defer span.End()
	out, err := output(env, env.Emulator, "-list-avds")
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrEmulatorStart, err)
		recordSpanError(span, err)
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	span.SetAttributes(attribute.Int("avd_count", len(names)))
	return names, nil
}

// PickAVD returns want when it is listed, or the last listed AVD when want is empty.
func PickAVD(names []string, want string) (string, error) {
	if len(names) == 0 {
		return "", ErrNoEmulators
	}
	if want == "" {
		return names[len(names)-1], nil
	}
	if !slices.Contains(names, want) {
		return "", fmt.Errorf("%w: AVD %q is not one of %s", ErrNoEmulators, want, strings.Join(names, ", "))
	}
	return want, nil
}

// StartAVD boots the AVD and returns without waiting for it. Emulator output
// goes straight to a log file under the temp dir so the emulator keeps
// running after this process exits.
func StartAVD(env Env, name string) (int, string, error) {
	_, span := startSpan(env, "launch.StartAVD", attribute.String("name", name))
	defer span.End()
	logEvent(env, "emulator start requested", "name", name, "dns_server", env.DNSServer)

	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("droidrun-emulator-%s-%d.log", name, time.Now().Unix()))
	logFile, err := os.Create(logPath)
	if err != nil {
		err = fmt.Errorf("%w: open log: %v", ErrEmulatorStart, err)
		recordSpanError(span, err)
		return 0, "", err
	}

	args := []string{"-avd", name}
	if env.DNSServer != "" {
		args = append(args, "-dns-server", env.DNSServer)
	}
	// Not bound to env.Context and not in our process group: the emulator
	// must outlive the run, including a Ctrl-C during the device wait.
	cmd := exec.Command(env.Emulator, args...)
	detach(cmd)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	err = cmd.Start()
	_ = logFile.Close()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrEmulatorStart, err)
		recordSpanError(span, err)
		logEvent(env, "emulator start failed", "name", name, "error", err, "log_path", logPath)
		return 0, "", err
	}
	go func() { _ = cmd.Wait() }()

	span.SetAttributes(
		attribute.Int("pid", cmd.Process.Pid),
		attribute.String("log_path", logPath),
	)
	logEvent(env, "emulator started", "name", name, "pid", cmd.Process.Pid, "log_path", logPath)
	return cmd.Process.Pid, logPath, nil
}
