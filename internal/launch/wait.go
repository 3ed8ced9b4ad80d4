// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"go.opentelemetry.io/otel/attribute"
)

type waitState int

const (
	waitProbing waitState = iota
	waitRetryScheduled
	waitReady
	waitExhausted
	waitFailed
)

func (s waitState) String() string {
	switch s {
	case waitProbing:
		return "probing"
	case waitRetryScheduled:
		return "retry_scheduled"
	case waitReady:
		return "ready"
	case waitExhausted:
		return "exhausted"
	case waitFailed:
		return "failed"
	}
	return fmt.Sprintf("waitState(%d)", int(s))
}

// deviceWaiter polls until exactly one device is listed and accepts a
// command. Ambiguity is fatal at once; everything else is retried until
// attempts probes have been made.
type deviceWaiter struct {
	probe    func() (DeviceState, error)
	liveness func() error
	sleep    func(time.Duration) error
	interval time.Duration
	attempts int
	// observe, when set, sees every state entered after a probe.
	observe func(attempt int, state waitState, cause error)
}

func (w *deviceWaiter) wait(rc *RunContext) error {
	attempts := w.attempts
	if attempts <= 0 {
		attempts = DefaultWaitAttempts
	}
	state := waitProbing
	var cause error
	for {
		switch state {
		case waitProbing:
			devices, err := w.probe()
			switch {
			case errors.Is(err, ErrDevicesAmbiguous):
				state, cause = waitFailed, err
			case err != nil:
				state, cause = waitRetryScheduled, err
			case devices == DeviceMoreThanOne:
				state, cause = waitFailed, ErrDevicesAmbiguous
			case devices == DeviceExactlyOne:
				if err := w.liveness(); err != nil {
					state, cause = waitRetryScheduled, err
				} else {
					state, cause = waitReady, nil
				}
			default:
				state, cause = waitRetryScheduled, nil
			}
			if w.observe != nil {
				w.observe(rc.RetryCount+1, state, cause)
			}
		case waitRetryScheduled:
			rc.RetryCount++
			if rc.RetryCount >= attempts {
				state = waitExhausted
				continue
			}
			if err := w.sleep(w.interval); err != nil {
				return err
			}
			state = waitProbing
		case waitReady:
			return nil
		case waitExhausted:
			if cause != nil {
				return fmt.Errorf("%w after %d attempts: %v", ErrDeviceTimeout, rc.RetryCount, cause)
			}
			return fmt.Errorf("%w after %d attempts", ErrDeviceTimeout, rc.RetryCount)
		case waitFailed:
			return cause
		}
	}
}

func sleepContext(ctx context.Context) func(time.Duration) error {
	return func(d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// WaitForDevice blocks until a single device is connected and accepts
// `am force-stop` for the run's package, retrying every env.WaitInterval
// for at most env.WaitAttempts probes.
func WaitForDevice(env Env, rc *RunContext) error {
	_, span := startSpan(
		env,
		"launch.WaitForDevice",
		attribute.String("package", rc.PackageID),
		attribute.Int("max_attempts", env.WaitAttempts),
		attribute.String("interval", env.WaitInterval.String()),
	)
	defer span.End()
	started := time.Now()

	w := &deviceWaiter{
		probe:    func() (DeviceState, error) { return CheckDevices(env) },
		liveness: func() error { return forceStop(env, rc.PackageID) },
		sleep:    sleepContext(env.context()),
		interval: env.WaitInterval,
		attempts: env.WaitAttempts,
		observe: func(attempt int, state waitState, cause error) {
			fields := []any{"attempt", attempt, "max_attempts", env.WaitAttempts, "state", state.String()}
			if cause != nil {
				fields = append(fields, "error", cause.Error())
			}
			logEvent(env, "waiting for device", fields...)
		},
	}
	err := w.wait(rc)
	span.SetAttributes(attribute.Int("retries", rc.RetryCount))
	if err != nil {
		recordSpanError(span, err)
		logEvent(env, "device wait failed", "retries", rc.RetryCount, "error", err.Error())
		return err
	}
	logEvent(env, "device ready", "retries", rc.RetryCount, "elapsed", units.HumanDuration(time.Since(started)))
	return nil
}
