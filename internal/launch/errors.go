// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
)

// Each sentinel wraps an errdefs class, so both errors.Is(err, ErrX) and
// errdefs.IsNotFound(err) style checks work on returned errors.
var (
	ErrEnvMissing  = newKind("ANDROID_HOME not set", errdefs.ErrInvalidArgument)
	ErrEnvNotFound = newKind("ANDROID_HOME not found", errdefs.ErrNotFound)

	ErrManifestIncomplete = newKind("package name or main activity missing from manifest", errdefs.ErrFailedPrecondition)
	ErrManifestMalformed  = newKind("malformed manifest", errdefs.ErrInvalidArgument)

	ErrDevicesAmbiguous  = newKind("more than one device connected, disconnect until just one remains", errdefs.ErrConflict)
	ErrBridgeUnavailable = newKind("adb unavailable", errdefs.ErrUnavailable)

	ErrNoEmulators   = newKind("no emulator found, create at least one AVD", errdefs.ErrNotFound)
	ErrEmulatorStart = newKind("emulator start failed", errdefs.ErrInternal)

	ErrDeviceTimeout = newKind("device did not become ready", context.DeadlineExceeded)

	ErrForwardFailed = newKind("port forwarding failed", errdefs.ErrUnavailable)
	ErrBuildFailed   = newKind("gradle build failed", errdefs.ErrAborted)
	ErrLaunchFailed  = newKind("activity launch failed", errdefs.ErrAborted)
)

// kindError keeps the message readable while still unwrapping to its class.
type kindError struct {
	msg   string
	class error
}

func newKind(msg string, class error) error { return &kindError{msg: msg, class: class} }

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.class }

type Stage string

const (
	StageEnvironment Stage = "environment"
	StageManifest    Stage = "manifest"
	StageDevice      Stage = "device"
	StageForward     Stage = "forward"
	StageBuild       Stage = "build"
	StageLaunch      Stage = "launch"
)

// StageError names the pipeline stage that stopped the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }
