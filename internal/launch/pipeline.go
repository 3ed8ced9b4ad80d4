// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RunContext is the state of one run. It is created by Run and returned to
// the caller whether or not the run succeeded.
type RunContext struct {
	RunID          string    `json:"run_id"`
	PackageID      string    `json:"package"`
	EntryComponent string    `json:"activity"`
	RetryCount     int       `json:"retry_count"`
	AVD            string    `json:"avd,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

func (rc *RunContext) requireManifest() error {
	if rc.PackageID == "" || rc.EntryComponent == "" {
		return ErrManifestIncomplete
	}
	return nil
}

type stage struct {
	name Stage
	run  func(Env, *RunContext) error
}

func pipeline() []stage {
	return []stage{
		{StageEnvironment, func(env Env, _ *RunContext) error { return VerifyEnvironment(env) }},
		{StageManifest, readManifestStage},
		{StageDevice, ensureDevice},
		{StageForward, func(env Env, _ *RunContext) error { return ForwardPorts(env, env.Ports) }},
		{StageBuild, func(env Env, rc *RunContext) error {
			if err := rc.requireManifest(); err != nil {
				return err
			}
			return BuildAndInstall(env, rc.PackageID)
		}},
		{StageLaunch, func(env Env, rc *RunContext) error {
			if err := rc.requireManifest(); err != nil {
				return err
			}
			return LaunchActivity(env, rc.PackageID, rc.EntryComponent)
		}},
	}
}

func readManifestStage(env Env, rc *RunContext) error {
	info, err := ReadManifest(env)
	if err != nil {
		return err
	}
	rc.PackageID = info.Package
	rc.EntryComponent = info.Activity
	return nil
}

// ensureDevice is the only recoverable branch: no device means boot an AVD
// and wait for it. Any other probe outcome either proceeds or aborts.
func ensureDevice(env Env, rc *RunContext) error {
	state, err := CheckDevices(env)
	if err != nil {
		return err
	}
	if state == DeviceExactlyOne {
		return nil
	}
	logEvent(env, "no device connected, booting emulator")
	names, err := ListAVDs(env)
	if err != nil {
		return err
	}
	name, err := PickAVD(names, env.AVD)
	if err != nil {
		return err
	}
	if _, _, err := StartAVD(env, name); err != nil {
		return err
	}
	rc.AVD = name
	return WaitForDevice(env, rc)
}

// Run executes every stage in order. The first failing stage stops the run
// and is returned as a *StageError; nothing already done is rolled back.
func Run(env Env) (*RunContext, error) {
	rc := &RunContext{RunID: uuid.NewString(), StartedAt: time.Now()}
	if env.CorrelationID == "" {
		env.CorrelationID = rc.RunID
	}
	ctx, span := startSpan(env, "launch.Run", attribute.String("run_id", rc.RunID))
	defer span.End()
	env.Context = ctx

	logEvent(env, "run start", "run_id", rc.RunID, "project_dir", env.ProjectDir)
	for _, st := range pipeline() {
		if err := st.run(env, rc); err != nil {
			err = &StageError{Stage: st.name, Err: err}
			recordSpanError(span, err)
			logEvent(env, "run failed", "stage", string(st.name), "error", err.Error(),
				"elapsed", units.HumanDuration(time.Since(rc.StartedAt)))
			return rc, err
		}
	}
	span.SetAttributes(
		attribute.String("package", rc.PackageID),
		attribute.String("activity", rc.EntryComponent),
		attribute.Int("retries", rc.RetryCount),
	)
	logEvent(env, "run finished", "package", rc.PackageID, "activity", rc.EntryComponent,
		"elapsed", units.HumanDuration(time.Since(rc.StartedAt)))
	return rc, nil
}
