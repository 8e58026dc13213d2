package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/scenario"
	"github.com/fleetsim/fleet-sim/sim/telemetry"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

var (
	// Input files
	topologyPath string // Host inventory YAML
	workloadPath string // Server trace YAML
	policyPath   string // Scheduler and fault policy YAML (optional)

	// Run control
	seed              int64  // Master seed for workload, scheduler and fault streams
	simulationHorizon int64  // Virtual time bound in ms; 0 runs until idle
	logLevel          string // Log verbosity level
	traceLevel        string // What the in-memory recorder keeps
	metricsFile       string // Prometheus textfile written after the run
	resultsPath       string // JSON report written after the run

	// Policy overrides
	schedulingMode string // Overrides scheduler.mode
	filterSpec     string // Overrides scheduler.filters
	weigherSpec    string // Overrides scheduler.weighers
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fleet-sim",
	Short: "Discrete-event simulator for datacenter compute fleets",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a fleet simulation",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel(); err != nil {
			logrus.Fatalf("%v", err)
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		var prom *telemetry.PrometheusSink
		if metricsFile != "" {
			prom = telemetry.NewPrometheusSink()
			cfg.Sink = prom
		}

		startTime := time.Now()
		s, err := scenario.New(cfg)
		if err != nil {
			logrus.Fatalf("building simulation: %v", err)
		}
		res, err := s.Run()
		if err != nil {
			logrus.Fatalf("running simulation: %v", err)
		}

		report := NewReport(res, s.Service, time.Since(startTime))
		report.Print(os.Stdout)
		if resultsPath != "" {
			if err := report.Save(resultsPath); err != nil {
				logrus.Fatalf("writing results: %v", err)
			}
			logrus.Infof("Results written to %s", resultsPath)
		}
		if prom != nil {
			if err := prom.WriteTextfile(metricsFile); err != nil {
				logrus.Fatalf("writing metrics: %v", err)
			}
			logrus.Infof("Metrics written to %s", metricsFile)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd loads and validates the input files without running
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate topology, workload and policy files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setLogLevel(); err != nil {
			return err
		}
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		servers, err := cfg.Workload.Expand(seed)
		if err != nil {
			return fmt.Errorf("workload: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d hosts, %d servers\n", len(cfg.Topology.Expand()), len(servers))
		return nil
	},
}

// setLogLevel applies --log to the package-level logger.
func setLogLevel() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	return nil
}

// buildConfig loads the input files and applies flag overrides.
func buildConfig(cmd *cobra.Command) (scenario.Config, error) {
	if topologyPath == "" || workloadPath == "" {
		return scenario.Config{}, fmt.Errorf("--topology and --workload are required")
	}
	topo, err := compute.LoadTopology(topologyPath)
	if err != nil {
		return scenario.Config{}, err
	}
	wl, err := workload.LoadWorkloadSpec(workloadPath)
	if err != nil {
		return scenario.Config{}, err
	}
	policy := &scenario.PolicyBundle{}
	if policyPath != "" {
		if policy, err = scenario.LoadPolicyBundle(policyPath); err != nil {
			return scenario.Config{}, err
		}
	}
	applyOverrides(cmd, policy)
	return scenario.Config{
		Topology: topo,
		Workload: wl,
		Policy:   policy,
		Seed:     seed,
		Horizon:  simulationHorizon,
		Level:    telemetry.Level(traceLevel),
	}, nil
}

// applyOverrides copies explicitly set policy flags over the bundle.
func applyOverrides(cmd *cobra.Command, policy *scenario.PolicyBundle) {
	if cmd.Flags().Changed("mode") {
		logrus.Infof("--mode overrides policy scheduler.mode: %q", schedulingMode)
		policy.Scheduler.Mode = schedulingMode
	}
	if cmd.Flags().Changed("filters") {
		logrus.Infof("--filters overrides policy scheduler.filters: %q", filterSpec)
		policy.Scheduler.Filters = filterSpec
	}
	if cmd.Flags().Changed("weighers") {
		logrus.Infof("--weighers overrides policy scheduler.weighers: %q", weigherSpec)
		policy.Scheduler.Weighers = weigherSpec
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&topologyPath, "topology", "", "Path to the topology YAML")
	cmd.Flags().StringVar(&workloadPath, "workload", "", "Path to the workload YAML")
	cmd.Flags().StringVar(&policyPath, "policy", "", "Path to the policy bundle YAML (optional)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for workload synthesis, random scheduling and faults")
	cmd.Flags().StringVar(&schedulingMode, "mode", "", "Scheduling mode (interactive, batch:<quantum>, random[:<seed>[:<max>]])")
	cmd.Flags().StringVar(&filterSpec, "filters", "", "Scheduler filters, e.g. compute,vcpu:16,ram:1.5")
	cmd.Flags().StringVar(&weigherSpec, "weighers", "", "Scheduler weighers, e.g. ram:1,instance-count:-1")
	cmd.Flags().Int64Var(&simulationHorizon, "horizon", 0, "Simulation horizon in ms (0 runs until idle)")
	cmd.Flags().StringVar(&traceLevel, "trace-level", "full", "Recorded telemetry (none, events, full)")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

// init sets up CLI flags and subcommands
func init() {
	addInputFlags(runCmd)
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	runCmd.Flags().StringVar(&resultsPath, "results-path", "", "Write the JSON report to this path")

	addInputFlags(validateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
