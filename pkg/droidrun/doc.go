// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package droidrun is the library form of the droidrun command: it takes an
Android project from source to a running activity on one device.

# Quick Start

	import "github.com/forkbombeu/droidrun/pkg/droidrun"

	func main() {
		res, err := droidrun.New().Run()
		if err != nil {
			log.Fatalf("failed in %s: %v", res.FailedStep, err)
		}
		fmt.Println("launched", res.Package+"/"+res.Activity)
	}

# Pipeline

Run executes these steps in order and stops at the first failure. Nothing
already done is undone.

 1. environment: ANDROID_HOME must be set and name an existing directory
 2. manifest: the package and the last activity (or activity-alias) with a
    MAIN/LAUNCHER intent filter are read from AndroidManifest.xml
 3. device: adb must list exactly one device. With none, the last listed
    AVD (or Environment.AVD) is booted and polled every WaitInterval for at
    most WaitAttempts probes. With more than one, the run aborts.
 4. forward: every PortMapping is applied with adb reverse
 5. build: the app is force-stopped and the Gradle task runs once
 6. launch: the activity is started with am start -n

# Errors

Errors carry a class from github.com/containerd/errdefs, so callers can
branch with errdefs.IsNotFound, errdefs.IsConflict and friends. FailedStep
names the stage an error from Run came from.

# Environment Configuration

By default, the launcher detects settings from environment variables:
  - ANDROID_HOME
  - DROIDRUN_PROJECT_DIR
  - DROIDRUN_MANIFEST
  - DROIDRUN_AVD
  - DROIDRUN_DNS_SERVER
  - DROIDRUN_CORRELATION_ID

Use NewWithEnv() to override them.

# Thread Safety

A Launcher drives a single device through adb and is not meant for
concurrent Run calls.

# License

AGPL-3.0-only

Copyright (C) 2025 Forkbomb B.V.
*/
package droidrun
