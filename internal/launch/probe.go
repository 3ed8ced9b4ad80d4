// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

type DeviceState int

const (
	DeviceNone DeviceState = iota
	DeviceExactlyOne
	DeviceMoreThanOne
)

func (s DeviceState) String() string {
	switch s {
	case DeviceNone:
		return "none"
	case DeviceExactlyOne:
		return "exactly_one"
	case DeviceMoreThanOne:
		return "more_than_one"
	}
	return fmt.Sprintf("DeviceState(%d)", int(s))
}

const devicesHeader = "List of devices attached"

// ClassifyDevices counts `adb devices` lines whose status is "device".
// Offline and unauthorized entries are not usable and are not counted.
func ClassifyDevices(out string) DeviceState {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, devicesHeader) {
			continue
		}
		f := strings.Fields(line)
		if len(f) >= 2 && f[1] == "device" {
			count++
		}
	}
	switch {
	case count == 0:
		return DeviceNone
	case count == 1:
		return DeviceExactlyOne
	default:
		return DeviceMoreThanOne
	}
}

// CheckDevices probes adb once. DeviceMoreThanOne is returned together with
// ErrDevicesAmbiguous: there is no basis to pick one.
func CheckDevices(env Env) (DeviceState, error) {
	_, span := startSpan(env, "launch.CheckDevices")
	defer span.End()
	out, err := output(env, env.ADB, "devices")
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		recordSpanError(span, err)
		return DeviceNone, err
	}
	state := ClassifyDevices(out)
	span.SetAttributes(attribute.String("device_state", state.String()))
	if state == DeviceMoreThanOne {
		recordSpanError(span, ErrDevicesAmbiguous)
		return state, ErrDevicesAmbiguous
	}
	return state, nil
}
