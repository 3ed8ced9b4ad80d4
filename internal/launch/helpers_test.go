// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const (
	oneDevice  = "List of devices attached\nemulator-5554\tdevice\n\n"
	twoDevices = "List of devices attached\nemulator-5554\tdevice\nR58M123ABC\tdevice\n\n"
	noDevices  = "List of devices attached\n\n"
)

// sdkStub is a throwaway ANDROID_HOME with scripted adb, emulator and
// gradlew. Every invocation is appended to a calls file.
type sdkStub struct {
	root       string
	projectDir string
	calls      string
	devices    string
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func quietLogs(t *testing.T) {
	t.Helper()
	previous := launchLogger
	launchLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	t.Cleanup(func() { launchLogger = previous })
}

func newSDKStub(t *testing.T, devices string) *sdkStub {
	t.Helper()
	requireShell(t)
	quietLogs(t)
	root := t.TempDir()
	s := &sdkStub{
		root:       root,
		projectDir: filepath.Join(root, "project"),
		calls:      filepath.Join(root, "calls.log"),
		devices:    filepath.Join(root, "devices.txt"),
	}
	if err := os.MkdirAll(s.projectDir, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	s.setDevices(t, devices)
	s.writeADB(t)
	s.writeEmulator(t, "Pixel_6_API_34\n", "")
	s.writeGradle(t, 0)
	return s
}

func (s *sdkStub) setDevices(t *testing.T, devices string) {
	t.Helper()
	if err := os.WriteFile(s.devices, []byte(devices), 0o644); err != nil {
		t.Fatalf("write devices: %v", err)
	}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeADB installs the adb stub. extra are additional `case "$*"` arms,
// evaluated before the defaults.
func (s *sdkStub) writeADB(t *testing.T, extra ...string) {
	t.Helper()
	body := fmt.Sprintf("echo \"adb $*\" >> '%s'\n", s.calls) +
		"case \"$*\" in\n" +
		strings.Join(extra, "\n") + "\n" +
		fmt.Sprintf("  devices) cat '%s' ;;\n", s.devices) +
		"esac\n" +
		"exit 0\n"
	writeScript(t, s.adb(), body)
}

// writeEmulator installs the emulator stub. Booting an AVD replaces the
// device list with bootDevices unless it is empty.
func (s *sdkStub) writeEmulator(t *testing.T, avds, bootDevices string) {
	t.Helper()
	listing := filepath.Join(s.root, "avds.txt")
	if err := os.WriteFile(listing, []byte(avds), 0o644); err != nil {
		t.Fatalf("write avds: %v", err)
	}
	boot := ":"
	if bootDevices != "" {
		booted := filepath.Join(s.root, "booted.txt")
		if err := os.WriteFile(booted, []byte(bootDevices), 0o644); err != nil {
			t.Fatalf("write booted devices: %v", err)
		}
		boot = fmt.Sprintf("cp '%s' '%s'", booted, s.devices)
	}
	body := fmt.Sprintf("echo \"emulator $*\" >> '%s'\n", s.calls) +
		"case \"$1\" in\n" +
		fmt.Sprintf("  -list-avds) cat '%s' ;;\n", listing) +
		fmt.Sprintf("  -avd) %s ;;\n", boot) +
		"esac\n" +
		"exit 0\n"
	writeScript(t, s.emulator(), body)
}

func (s *sdkStub) writeGradle(t *testing.T, exitCode int) {
	t.Helper()
	body := fmt.Sprintf("echo \"gradlew $*\" >> '%s'\n", s.calls) +
		"echo \"BUILD OUTPUT\"\n" +
		fmt.Sprintf("exit %d\n", exitCode)
	writeScript(t, filepath.Join(s.projectDir, "gradlew"), body)
}

func (s *sdkStub) adb() string      { return filepath.Join(s.root, "platform-tools", "adb") }
func (s *sdkStub) emulator() string { return filepath.Join(s.root, "emulator", "emulator") }

func (s *sdkStub) writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(s.projectDir, "app", "src", "main", "AndroidManifest.xml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir manifest dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func (s *sdkStub) env() Env {
	return Env{
		SDKRoot:      s.root,
		ProjectDir:   s.projectDir,
		ManifestPath: filepath.Join(s.projectDir, "app", "src", "main", "AndroidManifest.xml"),
		ADB:          s.adb(),
		Emulator:     s.emulator(),
		Gradle:       "./gradlew",
		BuildTask:    DefaultBuildTask,
		Ports:        DefaultPorts(),
		WaitInterval: 20 * time.Millisecond,
		WaitAttempts: 200,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
		Context:      context.Background(),
	}
}

// recordedCalls returns the invocations logged by the stubs, in order.
func (s *sdkStub) recordedCalls(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(s.calls)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

const exampleManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.example.app">
    <application android:name=".MainApplication" android:label="Example">
        <activity android:name="MainActivity">
            <intent-filter>
                <action android:name="android.intent.action.MAIN" />
                <category android:name="android.intent.category.LAUNCHER" />
            </intent-filter>
        </activity>
        <activity android:name="SettingsActivity" />
    </application>
</manifest>
`
