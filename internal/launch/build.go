// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/docker/go-units"
	"go.opentelemetry.io/otel/attribute"
)

// BuildAndInstall stops any running instance of the package, then runs the
// Gradle install task in env.ProjectDir with its output streamed through.
func BuildAndInstall(env Env, packageID string) error {
	_, span := startSpan(
		env,
		"launch.BuildAndInstall",
		attribute.String("package", packageID),
		attribute.String("task", env.BuildTask),
	)
	defer span.End()

	// The package may not be installed yet.
	_ = forceStop(env, packageID)

	logEvent(env, "gradle build start", "project_dir", env.ProjectDir, "task", env.BuildTask)
	args := []string{env.Gradle, env.BuildTask}
	cmd := exec.CommandContext(env.context(), "sh", args...)
	cmd.Dir = env.ProjectDir
	cmd.Stdout = env.stdout()
	stderrLog := newCommandLogWriter(env, "gradle", []string{env.BuildTask})
	cmd.Stderr = io.MultiWriter(env.stderr(), stderrLog)
	err := cmd.Run()
	stderrLog.flush()
	if err != nil {
		err = fmt.Errorf("%w: sh %s %s in %s: %v", ErrBuildFailed, env.Gradle, env.BuildTask, env.ProjectDir, err)
		recordSpanError(span, err)
		return err
	}

	apks, _ := filepath.Glob(filepath.Join(env.ProjectDir, "app", "build", "outputs", "apk", "*", "*.apk"))
	for _, apk := range apks {
		if st, err := os.Stat(apk); err == nil {
			logEvent(env, "apk built", "path", apk, "size", units.HumanSize(float64(st.Size())))
		}
	}
	logEvent(env, "gradle build finished", "task", env.BuildTask, "apks", len(apks))
	return nil
}
