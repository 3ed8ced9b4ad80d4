// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// LaunchActivity starts packageID/component on the connected device.
func LaunchActivity(env Env, packageID, component string) error {
	target := packageID + "/" + component
	_, span := startSpan(env, "launch.LaunchActivity", attribute.String("component", target))
	defer span.End()

	out, err := adb(env, "shell", "am", "start", "-n", target)
	if err == nil {
		// am start reports a missing activity on stdout and still exits 0.
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "Error") {
				err = fmt.Errorf("am start -n %s: %s", target, strings.TrimSpace(out))
				break
			}
		}
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrLaunchFailed, err)
		recordSpanError(span, err)
		return err
	}
	logEvent(env, "activity started", "component", target)
	return nil
}
