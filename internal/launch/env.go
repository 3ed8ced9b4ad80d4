// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProjectDir   = "platform/android"
	DefaultManifestPath = "platform/android/app/src/main/AndroidManifest.xml"
	DefaultGradle       = "./gradlew"
	DefaultBuildTask    = "installDebug"
	DefaultWaitInterval = 2 * time.Second
	DefaultWaitAttempts = 30
)

type Env struct {
	SDKRoot      string // ANDROID_HOME
	ProjectDir   string // DROIDRUN_PROJECT_DIR (default platform/android)
	ManifestPath string // DROIDRUN_MANIFEST
	ADB          string // $ANDROID_HOME/platform-tools/adb
	Emulator     string // $ANDROID_HOME/emulator/emulator
	Gradle       string // gradle wrapper, run through sh inside ProjectDir
	BuildTask    string
	AVD          string // DROIDRUN_AVD (optional, otherwise the last listed AVD)
	DNSServer    string // DROIDRUN_DNS_SERVER (optional)
	Ports        []PortMapping
	WaitInterval time.Duration
	WaitAttempts int
	// Stdout and Stderr receive the streamed Gradle output.
	Stdout io.Writer
	Stderr io.Writer
	// CorrelationID is used to tie logs to a specific run.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans and to interrupt the device wait.
	Context context.Context
}

// PortMapping is one `adb reverse tcp:Host tcp:Device` rule.
type PortMapping struct {
	Host   int
	Device int
}

func (p PortMapping) String() string { return fmt.Sprintf("tcp:%d->tcp:%d", p.Host, p.Device) }

// DefaultPorts are forwarded on every run.
func DefaultPorts() []PortMapping {
	return []PortMapping{{Host: 8090, Device: 8090}, {Host: 8091, Device: 8091}}
}

// ParsePortMapping accepts "HOST:DEVICE" or a single "PORT" meaning the same port on both ends.
func ParsePortMapping(s string) (PortMapping, error) {
	host, device, found := strings.Cut(strings.TrimSpace(s), ":")
	h, err := parsePort(host)
	if err != nil {
		return PortMapping{}, fmt.Errorf("port mapping %q: %w", s, err)
	}
	if !found {
		return PortMapping{Host: h, Device: h}, nil
	}
	d, err := parsePort(device)
	if err != nil {
		return PortMapping{}, fmt.Errorf("port mapping %q: %w", s, err)
	}
	return PortMapping{Host: h, Device: d}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p <= 0 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

func Detect() Env {
	env := Env{
		ManifestPath:  os.Getenv("DROIDRUN_MANIFEST"),
		Gradle:        DefaultGradle,
		BuildTask:     DefaultBuildTask,
		AVD:           os.Getenv("DROIDRUN_AVD"),
		DNSServer:     os.Getenv("DROIDRUN_DNS_SERVER"),
		Ports:         DefaultPorts(),
		WaitInterval:  DefaultWaitInterval,
		WaitAttempts:  DefaultWaitAttempts,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		CorrelationID: getenv("DROIDRUN_CORRELATION_ID", ""),
		Context:       context.Background(),
	}
	env.SetSDKRoot(strings.TrimSpace(os.Getenv("ANDROID_HOME")))
	env.SetProjectDir(getenv("DROIDRUN_PROJECT_DIR", DefaultProjectDir))
	return env
}

// SetSDKRoot points SDKRoot, ADB and Emulator at the same SDK. An empty root
// falls back to adb and emulator from PATH.
func (env *Env) SetSDKRoot(root string) {
	env.SDKRoot = root
	if root == "" {
		env.ADB, env.Emulator = "adb", "emulator"
		return
	}
	env.ADB = filepath.Join(root, "platform-tools", "adb")
	env.Emulator = filepath.Join(root, "emulator", "emulator")
}

// ManifestFor is the manifest location inside a standard Gradle app module.
func ManifestFor(projectDir string) string {
	return filepath.Join(projectDir, "app", "src", "main", "AndroidManifest.xml")
}

// SetProjectDir moves the Gradle project. The manifest follows it unless it
// was set to something other than the previous project's default.
func (env *Env) SetProjectDir(dir string) {
	if env.ManifestPath == "" || env.ManifestPath == ManifestFor(env.ProjectDir) {
		env.ManifestPath = ManifestFor(dir)
	}
	env.ProjectDir = dir
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func (env Env) context() context.Context {
	if env.Context != nil {
		return env.Context
	}
	return context.Background()
}

func (env Env) stdout() io.Writer {
	if env.Stdout != nil {
		return env.Stdout
	}
	return io.Discard
}

func (env Env) stderr() io.Writer {
	if env.Stderr != nil {
		return env.Stderr
	}
	return io.Discard
}

// VerifyEnvironment checks that the SDK root is set and points at an existing directory.
func VerifyEnvironment(env Env) error {
	_, span := startSpan(env, "launch.VerifyEnvironment")
	defer span.End()

	if strings.TrimSpace(env.SDKRoot) == "" {
		err := fmt.Errorf("%w: set ANDROID_HOME to the Android SDK location", ErrEnvMissing)
		recordSpanError(span, err)
		return err
	}
	st, err := os.Stat(env.SDKRoot)
	if err != nil {
		err = fmt.Errorf("%w: ANDROID_HOME=%s: %v", ErrEnvNotFound, env.SDKRoot, err)
		recordSpanError(span, err)
		return err
	}
	if !st.IsDir() {
		err := fmt.Errorf("%w: ANDROID_HOME=%s is not a directory", ErrEnvNotFound, env.SDKRoot)
		recordSpanError(span, err)
		return err
	}
	logEvent(env, "sdk located", "sdk_root", env.SDKRoot)
	return nil
}
