// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package droidrun

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forkbombeu/droidrun/internal/launch"
)

var tracer = otel.Tracer("droidrun/pkg")

// Launcher runs the launch pipeline and its individual steps.
type Launcher struct {
	env launch.Env
}

// New creates a Launcher with an auto-detected environment.
func New() *Launcher {
	return &Launcher{
		env: launch.Detect(),
	}
}

// NewWithCorrelationID creates a Launcher whose logs and spans carry correlationID.
func NewWithCorrelationID(correlationID string) *Launcher {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a Launcher that parents its spans on ctx and stops
// waiting for a device when ctx is done.
func NewWithContext(ctx context.Context) *Launcher {
	return NewWithContextAndCorrelationID(ctx, "")
}

func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) *Launcher {
	env := launch.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	if correlationID != "" {
		env.CorrelationID = correlationID
	}
	return &Launcher{
		env: env,
	}
}

// NewWithEnv creates a Launcher from explicit settings. Zero fields fall
// back to the detected defaults.
func NewWithEnv(env Environment) *Launcher {
	e := launch.Detect()
	if env.SDKRoot != "" {
		e.SetSDKRoot(env.SDKRoot)
	}
	if env.ProjectDir != "" {
		e.SetProjectDir(env.ProjectDir)
	}
	if env.ManifestPath != "" {
		e.ManifestPath = env.ManifestPath
	}
	if env.ADBBin != "" {
		e.ADB = env.ADBBin
	}
	if env.EmulatorBin != "" {
		e.Emulator = env.EmulatorBin
	}
	if env.GradleWrapper != "" {
		e.Gradle = env.GradleWrapper
	}
	if env.BuildTask != "" {
		e.BuildTask = env.BuildTask
	}
	if env.AVD != "" {
		e.AVD = env.AVD
	}
	if env.DNSServer != "" {
		e.DNSServer = env.DNSServer
	}
	if len(env.Ports) > 0 {
		e.Ports = toLaunchPorts(env.Ports)
	}
	if env.WaitInterval > 0 {
		e.WaitInterval = env.WaitInterval
	}
	if env.WaitAttempts > 0 {
		e.WaitAttempts = env.WaitAttempts
	}
	if env.Stdout != nil {
		e.Stdout = env.Stdout
	}
	if env.Stderr != nil {
		e.Stderr = env.Stderr
	}
	if env.CorrelationID != "" {
		e.CorrelationID = env.CorrelationID
	}
	e.Context = env.Context
	if e.Context == nil {
		e.Context = context.Background()
	}
	return &Launcher{env: e}
}

// Environment holds paths and tunables for a Launcher.
type Environment struct {
	SDKRoot       string          // ANDROID_HOME
	ProjectDir    string          // Android project root (default: platform/android)
	ManifestPath  string          // AndroidManifest.xml (default: <ProjectDir>/app/src/main/AndroidManifest.xml)
	ADBBin        string          // Path to adb (default: <SDKRoot>/platform-tools/adb)
	EmulatorBin   string          // Path to emulator (default: <SDKRoot>/emulator/emulator)
	GradleWrapper string          // Gradle wrapper relative to ProjectDir (default: ./gradlew)
	BuildTask     string          // Gradle task (default: installDebug)
	AVD           string          // AVD to boot when no device is connected (default: last listed)
	DNSServer     string          // Passed to the emulator as -dns-server
	Ports         []PortMapping   // Reverse-forwarded ports (default: 8090 and 8091)
	WaitInterval  time.Duration   // Delay between device probes (default: 2s)
	WaitAttempts  int             // Maximum device probes (default: 30)
	Stdout        io.Writer       // Build output (default: os.Stdout)
	Stderr        io.Writer       // Build errors (default: os.Stderr)
	CorrelationID string          // Correlation ID for log enrichment
	Context       context.Context // Context for tracing and cancellation
}

// PortMapping reverse-forwards tcp:Host on the workstation side to tcp:Device.
type PortMapping struct {
	Host   int
	Device int
}

// ManifestInfo is the application ID and launcher activity of a manifest.
type ManifestInfo struct {
	Package  string
	Activity string
}

// RunResult describes a finished or aborted run.
type RunResult struct {
	RunID      string    // Unique ID, also the correlation ID unless one was set
	Package    string    // Application ID
	Activity   string    // Launched component
	AVD        string    // AVD booted for this run, empty when a device was already connected
	Retries    int       // Failed device probes while waiting for the emulator
	StartedAt  time.Time // Start of the run
	FailedStep string    // Pipeline stage that failed, empty on success
}

// DeviceState is the result of a device probe.
type DeviceState string

const (
	DevicesNone        DeviceState = "none"
	DevicesExactlyOne  DeviceState = "exactly_one"
	DevicesMoreThanOne DeviceState = "more_than_one"
)

// Run executes environment check, manifest read, device selection, port
// forwarding, build and launch in that order, stopping at the first error.
func (l *Launcher) Run() (RunResult, error) {
	rc, err := launch.Run(l.env)
	var res RunResult
	if rc != nil {
		res = RunResult{
			RunID:     rc.RunID,
			Package:   rc.PackageID,
			Activity:  rc.EntryComponent,
			AVD:       rc.AVD,
			Retries:   rc.RetryCount,
			StartedAt: rc.StartedAt,
		}
	}
	if err != nil {
		res.FailedStep = FailedStep(err)
	}
	return res, err
}

// CheckEnvironment verifies that ANDROID_HOME is set and exists.
func (l *Launcher) CheckEnvironment() error {
	return launch.VerifyEnvironment(l.env)
}

// ReadManifest extracts the package and launcher activity.
func (l *Launcher) ReadManifest() (ManifestInfo, error) {
	info, err := launch.ReadManifest(l.env)
	if err != nil {
		return ManifestInfo{}, err
	}
	return ManifestInfo{Package: info.Package, Activity: info.Activity}, nil
}

// Devices probes adb for attached devices. More than one device is
// reported together with an error.
func (l *Launcher) Devices() (DeviceState, error) {
	ctx, span := l.startSpan("droidrun.Devices")
	defer span.End()
	env := l.env
	env.Context = ctx

	state, err := launch.CheckDevices(env)
	span.SetAttributes(attribute.String("state", state.String()))
	if err != nil {
		span.RecordError(err)
	}
	return DeviceState(state.String()), err
}

// ListAVDs returns the AVD names known to the emulator, in listing order.
func (l *Launcher) ListAVDs() ([]string, error) {
	return launch.ListAVDs(l.env)
}

// ForwardPorts applies the given mappings, or the configured ones when none
// are passed.
func (l *Launcher) ForwardPorts(mappings ...PortMapping) error {
	ports := l.env.Ports
	if len(mappings) > 0 {
		ports = toLaunchPorts(mappings)
	}
	ctx, span := l.startSpan("droidrun.ForwardPorts", attribute.Int("mappings", len(ports)))
	defer span.End()
	env := l.env
	env.Context = ctx
	if err := launch.ForwardPorts(env, ports); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// FailedStep returns the pipeline stage an error from Run was raised in.
func FailedStep(err error) string {
	var stageErr *launch.StageError
	if errors.As(err, &stageErr) {
		return string(stageErr.Stage)
	}
	return ""
}

func (l *Launcher) startSpan(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if l.env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", l.env.CorrelationID))
	}
	ctx := l.env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func toLaunchPorts(in []PortMapping) []launch.PortMapping {
	out := make([]launch.PortMapping, len(in))
	for i, p := range in {
		out[i] = launch.PortMapping{Host: p.Host, Device: p.Device}
	}
	return out
}
