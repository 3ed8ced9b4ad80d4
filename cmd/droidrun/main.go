// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	core "github.com/forkbombeu/droidrun/internal/launch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	shutdown, err := setupTracing(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := 0
	if err := newRootCmd(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code = 1
	}
	shutdown()
	stop()
	os.Exit(code)
}

// setupTracing installs an OTLP/HTTP exporter when an endpoint is configured.
func setupTracing(ctx context.Context) (func(), error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return func() {}, nil
	}
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(provider)
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(flushCtx)
	}, nil
}

func newRootCmd(ctx context.Context) *cobra.Command {
	env := core.Detect()
	env.Context = ctx

	var (
		configPath string
		projectDir string
		manifest   string
		avdName    string
		dnsServer  string
		ports      []string
		logFormat  string
	)

	root := &cobra.Command{
		Use:           "droidrun",
		Short:         "Build, install and launch an Android app on one device or emulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := core.SetLogOutput(os.Stderr, logFormat); err != nil {
				return err
			}
			path, required := configPath, true
			if path == "" {
				path = os.Getenv("DROIDRUN_CONFIG")
			}
			if path == "" {
				path, required = core.DefaultConfigFile, false
			}
			cfg, err := core.LoadConfig(path, required)
			if err != nil {
				return err
			}
			if err := cfg.Apply(&env); err != nil {
				return err
			}
			// flags win over the config file
			if projectDir != "" {
				env.SetProjectDir(projectDir)
			}
			if manifest != "" {
				env.ManifestPath = manifest
			}
			if avdName != "" {
				env.AVD = avdName
			}
			if dnsServer != "" {
				env.DNSServer = dnsServer
			}
			if len(ports) > 0 {
				env.Ports = env.Ports[:0:0]
				for _, p := range ports {
					m, err := core.ParsePortMapping(p)
					if err != nil {
						return err
					}
					env.Ports = append(env.Ports, m)
				}
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: $DROIDRUN_CONFIG or ./droidrun.yaml if present)")
	pf.StringVar(&projectDir, "project-dir", "", "Android project directory (default: $DROIDRUN_PROJECT_DIR or platform/android)")
	pf.StringVar(&manifest, "manifest", "", "AndroidManifest.xml path (default: $DROIDRUN_MANIFEST)")
	pf.StringVar(&avdName, "avd", "", "AVD to boot when no device is connected (default: last listed)")
	pf.StringVar(&dnsServer, "dns-server", "", "DNS server passed to the emulator")
	pf.StringArrayVar(&ports, "port", nil, "reverse-forwarded port, HOST:DEVICE or PORT (repeatable, replaces 8090 and 8091)")
	pf.StringVar(&logFormat, "log-format", "json", "log format on stderr (json or text)")

	runE := func(cmd *cobra.Command, args []string) error {
		rc, err := core.Run(env)
		if err != nil {
			return err
		}
		fmt.Printf("Launched %s/%s in %s\n", rc.PackageID, rc.EntryComponent, units.HumanDuration(time.Since(rc.StartedAt)))
		return nil
	}
	root.RunE = runE

	// run
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Select a device, forward ports, build, install and launch (default)",
		RunE:  runE,
	})

	// check
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify that ANDROID_HOME points at an SDK directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.VerifyEnvironment(env); err != nil {
				return err
			}
			fmt.Printf("SDK: %s\nadb: %s\nemulator: %s\n", env.SDKRoot, env.ADB, env.Emulator)
			return nil
		},
	})

	// manifest
	var manifestJSON bool
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the package and launcher activity from AndroidManifest.xml",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := core.ReadManifest(env)
			if err != nil {
				return err
			}
			if manifestJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"package":   info.Package,
					"activity":  info.Activity,
					"component": info.Component(),
				})
			}
			fmt.Printf("Package:  %s\nActivity: %s\n", info.Package, info.Activity)
			return nil
		},
	}
	manifestCmd.Flags().BoolVar(&manifestJSON, "json", false, "output JSON")
	root.AddCommand(manifestCmd)

	// devices
	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "Report whether none, exactly one or more than one device is attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := core.CheckDevices(env)
			fmt.Println(state)
			if errors.Is(err, core.ErrDevicesAmbiguous) {
				return fmt.Errorf("%w: disconnect all but one device", err)
			}
			return err
		},
	})

	// avds
	var avdsJSON bool
	avdsCmd := &cobra.Command{
		Use:   "avds",
		Short: "List AVDs known to the emulator (the last one is booted by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := core.ListAVDs(env)
			if err != nil {
				return err
			}
			if avdsJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(names)
			}
			if len(names) == 0 {
				fmt.Println("(no AVDs)")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	avdsCmd.Flags().BoolVar(&avdsJSON, "json", false, "output JSON")
	root.AddCommand(avdsCmd)

	return root
}
