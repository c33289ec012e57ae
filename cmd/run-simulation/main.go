// Command run-simulation is the CLI entrypoint: it resolves a scenario
// from the catalog, runs it against an in-process CSMS and a batch of
// simulated CPs, and writes the labeled CSV tables spec.md §6
// describes. Flags follow the teacher's cobra command tree
// (marmos91-dittofs's cmd/dittofs), replacing the teacher's own bare
// os.Args switch (cmd/ocx-cli/main.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/control"
	"github.com/aegischarge/simulator/internal/csms"
	"github.com/aegischarge/simulator/internal/engine"
	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/scenarios"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, ocpp.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "run-simulation",
		Short: "OCPP 1.6-J charge-point simulator and labeled anomaly-data generator",
	}
	root.AddCommand(newRunCmd(), newScenariosCmd())
	return root
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "list the registered scenario names",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(scenarios.All()))
			for name := range scenarios.All() {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		scenarioName string
		mode         string
		duration     int
		stations     int
		output       string
		cpList       []string
		configPath   string
		envFile      string
		controlAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one scenario and write its labeled CSV tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, ok := scenarios.All()[scenarioName]
			if !ok {
				return fmt.Errorf("%w: unknown scenario %q", ocpp.ErrConfig, scenarioName)
			}
			if mode != "normal" && mode != "attack" {
				return fmt.Errorf("%w: --mode must be \"normal\" or \"attack\", got %q", ocpp.ErrConfig, mode)
			}

			catalog, err := config.LoadCatalog(configPath)
			if err != nil {
				return fmt.Errorf("%w: %v", ocpp.ErrConfig, err)
			}
			params, _ := catalog.Params(scenarioName)

			runtime := config.LoadEnv(envFile)

			if len(cpList) > 0 {
				stations = len(cpList)
			}

			typedDir, unifiedPath := outputPaths(output, scenarioName, mode)

			var controller *control.Controller
			if controlAddr != "" {
				controller = control.New()
				controlServer := &http.Server{Addr: controlAddr, Handler: controller.Router()}
				go func() {
					if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						fmt.Fprintln(os.Stderr, "control plane: ", err)
					}
				}()
				defer controlServer.Close()
			}

			eng := engine.New(engine.Options{
				ScenarioName:       scenarioName,
				Scenario:           scenario,
				Mode:               mode,
				Duration:           duration,
				Stations:           stations,
				TypedTableDir:      typedDir,
				UnifiedTablePath:   unifiedPath,
				CSMSAddr:           runtime.CSMSAddr,
				Params:             params,
				AuthTags:           csms.AuthorizedTags{"SIM_TAG": "simulated-cp", "YUNUS_TAG": "dark-profile-user-1", "AYSE_TAG": "dark-profile-user-2", "TEST123": "dark-profile-user-3"},
				DefaultIntervalSec: runtime.DefaultIntervalSec,
				WatchdogTick:       time.Duration(runtime.WatchdogTickSec) * time.Second,
				RedisAddr:          runtime.RedisAddr,
				TracingEnabled:     runtime.TracingEnabled,
				Control:            controller,
			})

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := eng.Run(ctx); err != nil {
				return fmt.Errorf("%w: %v", ocpp.ErrScenario, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioName, "scenario", "dalgali_yuk", "scenario name to run")
	cmd.Flags().StringVar(&mode, "mode", "normal", "\"normal\" or \"attack\"")
	cmd.Flags().IntVar(&duration, "duration", 10, "number of MeterValues ticks to drive")
	cmd.Flags().IntVar(&stations, "stations", 1, "number of simulated CPs")
	cmd.Flags().StringVar(&output, "output", "logs", "root directory for CSV output")
	cmd.Flags().StringSliceVar(&cpList, "cp-list", nil, "CP id list whose length overrides --stations; the ids themselves are not used, CPs are always named CP_001, CP_002, ...")
	cmd.Flags().StringVar(&configPath, "config", "config/scenarios.yaml", "scenario catalog YAML path")
	cmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file to load before CSMS_*/CP_* environment variables")
	cmd.Flags().StringVar(&controlAddr, "control-addr", "", "if set, serve the JSON control plane (status/stop) on this address")

	return cmd
}

// outputPaths builds the on-disk layout spec.md §6 specifies:
// logs/raw/{mode}/{scenario}/{timestamp}/ for the typed tables, and
// logs/ocpp/{scenario}_{mode}_{timestamp}.csv for the unified table.
func outputPaths(root, scenario, mode string) (typedDir, unifiedPath string) {
	stamp := time.Now().Format("20060102_150405")
	typedDir = filepath.Join(root, "raw", mode, scenario, stamp)
	unifiedPath = filepath.Join(root, "ocpp", fmt.Sprintf("%s_%s_%s.csv", scenario, mode, stamp))
	return typedDir, unifiedPath
}
