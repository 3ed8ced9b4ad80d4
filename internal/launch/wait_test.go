// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedWaiter replays one probe result per attempt and counts calls.
type scriptedWaiter struct {
	states    []DeviceState
	probeErrs []error
	alive     func(attempt int) bool
	probes    int
	sleeps    int
}

func (s *scriptedWaiter) waiter(attempts int) *deviceWaiter {
	return &deviceWaiter{
		probe: func() (DeviceState, error) {
			i := s.probes
			s.probes++
			var err error
			if i < len(s.probeErrs) {
				err = s.probeErrs[i]
			}
			if i < len(s.states) {
				return s.states[i], err
			}
			return s.states[len(s.states)-1], err
		},
		liveness: func() error {
			if s.alive != nil && s.alive(s.probes) {
				return nil
			}
			return errors.New("error: device offline")
		},
		sleep: func(time.Duration) error {
			s.sleeps++
			return nil
		},
		interval: 2 * time.Second,
		attempts: attempts,
	}
}

func repeat(state DeviceState, n int) []DeviceState {
	out := make([]DeviceState, n)
	for i := range out {
		out[i] = state
	}
	return out
}

func TestWaiterReadyOnFinalAttempt(t *testing.T) {
	s := &scriptedWaiter{
		states: append(repeat(DeviceNone, 29), DeviceExactlyOne),
		alive:  func(int) bool { return true },
	}
	rc := &RunContext{}
	if err := s.waiter(30).wait(rc); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if s.probes != 30 || s.sleeps != 29 || rc.RetryCount != 29 {
		t.Fatalf("probes=%d sleeps=%d retries=%d", s.probes, s.sleeps, rc.RetryCount)
	}
}

func TestWaiterReadyImmediately(t *testing.T) {
	s := &scriptedWaiter{states: []DeviceState{DeviceExactlyOne}, alive: func(int) bool { return true }}
	rc := &RunContext{}
	if err := s.waiter(30).wait(rc); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if s.probes != 1 || s.sleeps != 0 || rc.RetryCount != 0 {
		t.Fatalf("probes=%d sleeps=%d retries=%d", s.probes, s.sleeps, rc.RetryCount)
	}
}

func TestWaiterTimeoutWithoutDevice(t *testing.T) {
	s := &scriptedWaiter{states: []DeviceState{DeviceNone}}
	rc := &RunContext{}
	err := s.waiter(30).wait(rc)
	if !errors.Is(err, ErrDeviceTimeout) {
		t.Fatalf("expected ErrDeviceTimeout, got %v", err)
	}
	if s.probes != 30 || rc.RetryCount != 30 {
		t.Fatalf("expected 30 probes, got probes=%d retries=%d", s.probes, rc.RetryCount)
	}
}

func TestWaiterLivenessFailureIsRetried(t *testing.T) {
	s := &scriptedWaiter{states: []DeviceState{DeviceExactlyOne}}
	rc := &RunContext{}
	err := s.waiter(30).wait(rc)
	if !errors.Is(err, ErrDeviceTimeout) {
		t.Fatalf("expected ErrDeviceTimeout, got %v", err)
	}
	if s.probes != 30 {
		t.Fatalf("expected 30 probes, got %d", s.probes)
	}

	// The device starts accepting commands on the fifth probe.
	s = &scriptedWaiter{states: []DeviceState{DeviceExactlyOne}, alive: func(probe int) bool { return probe >= 5 }}
	rc = &RunContext{}
	if err := s.waiter(30).wait(rc); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if rc.RetryCount != 4 {
		t.Fatalf("expected 4 retries, got %d", rc.RetryCount)
	}
}

func TestWaiterAmbiguousStopsImmediately(t *testing.T) {
	s := &scriptedWaiter{
		states:    []DeviceState{DeviceNone, DeviceNone, DeviceMoreThanOne, DeviceExactlyOne},
		probeErrs: []error{nil, nil, ErrDevicesAmbiguous},
		alive:     func(int) bool { return true },
	}
	rc := &RunContext{}
	err := s.waiter(30).wait(rc)
	if !errors.Is(err, ErrDevicesAmbiguous) {
		t.Fatalf("expected ErrDevicesAmbiguous, got %v", err)
	}
	if s.probes != 3 || rc.RetryCount != 2 {
		t.Fatalf("expected stop at third probe, got probes=%d retries=%d", s.probes, rc.RetryCount)
	}
}

func TestWaiterMoreThanOneStateIsFatalWithoutError(t *testing.T) {
	s := &scriptedWaiter{
		states: []DeviceState{DeviceNone, DeviceMoreThanOne},
		alive:  func(int) bool { return true },
	}
	rc := &RunContext{}
	err := s.waiter(30).wait(rc)
	if !errors.Is(err, ErrDevicesAmbiguous) {
		t.Fatalf("expected ErrDevicesAmbiguous, got %v", err)
	}
	if s.probes != 2 || s.sleeps != 1 || rc.RetryCount != 1 {
		t.Fatalf("expected stop at second probe, got probes=%d sleeps=%d retries=%d", s.probes, s.sleeps, rc.RetryCount)
	}
}

func TestWaiterBridgeErrorsAreTransient(t *testing.T) {
	s := &scriptedWaiter{
		states:    []DeviceState{DeviceNone, DeviceExactlyOne},
		probeErrs: []error{ErrBridgeUnavailable},
		alive:     func(int) bool { return true },
	}
	rc := &RunContext{}
	if err := s.waiter(30).wait(rc); err != nil {
		t.Fatalf("expected ready after transient bridge error, got %v", err)
	}
	if rc.RetryCount != 1 {
		t.Fatalf("expected 1 retry, got %d", rc.RetryCount)
	}
}

func TestWaiterObserveSeesEveryProbe(t *testing.T) {
	s := &scriptedWaiter{states: []DeviceState{DeviceNone, DeviceNone, DeviceExactlyOne}, alive: func(int) bool { return true }}
	w := s.waiter(30)
	var seen []waitState
	var attempts []int
	w.observe = func(attempt int, state waitState, _ error) {
		attempts = append(attempts, attempt)
		seen = append(seen, state)
	}
	if err := w.wait(&RunContext{}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	want := []waitState{waitRetryScheduled, waitRetryScheduled, waitReady}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] || attempts[i] != i+1 {
			t.Fatalf("transition %d: got %s at attempt %d", i, seen[i], attempts[i])
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx)(time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background())(time.Millisecond); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWaitForDeviceWithStubbedADB(t *testing.T) {
	stub := newSDKStub(t, oneDevice)
	rc := &RunContext{PackageID: "com.example.app"}
	if err := WaitForDevice(stub.env(), rc); err != nil {
		t.Fatalf("wait: %v", err)
	}
	calls := stub.recordedCalls(t)
	if countPrefix(calls, "adb shell am force-stop com.example.app") != 1 {
		t.Fatalf("expected one liveness call, got %v", calls)
	}
}
