// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// ForwardPorts applies `adb reverse` for each mapping in order and stops at
// the first failure; a partially forwarded device is not usable.
func ForwardPorts(env Env, mappings []PortMapping) error {
	_, span := startSpan(env, "launch.ForwardPorts", attribute.Int("mappings", len(mappings)))
	defer span.End()
	for _, m := range mappings {
		if _, err := adb(env, "reverse", fmt.Sprintf("tcp:%d", m.Host), fmt.Sprintf("tcp:%d", m.Device)); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrForwardFailed, m, err)
			recordSpanError(span, err)
			return err
		}
		logEvent(env, "port forwarded", "host_port", m.Host, "device_port", m.Device)
	}
	return nil
}
