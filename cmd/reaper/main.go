// Package main is the CLI entry point for reaper.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/reaper/internal/config"
	"github.com/eliteGoblin/focusd/reaper/internal/daemon"
	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/infra"
	"github.com/eliteGoblin/focusd/reaper/internal/policy"
	"github.com/eliteGoblin/focusd/reaper/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reaper",
	Short: "Process watchdog - terminates runaway processes",
	Long: `reaper periodically scans the process table, flags processes that
match the configured detection rules (CPU, memory, name or command line)
and terminates them: SIGTERM first, SIGKILL after the grace period.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watchdog in the foreground",
	Long: `Runs the scan loop until interrupted (SIGINT/SIGTERM).
Intended to be supervised by systemd or a container runtime.`,
	RunE: runDaemon,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan immediately",
	Long:  `Runs one scan-match-act cycle and prints what was flagged and what happened to it.`,
	RunE:  runScan,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List effective detection rules and available presets",
	RunE:  runRules,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long:  `Loads and validates the configuration. Exits non-zero if the daemon would refuse to start.`,
	RunE:  runCheck,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent termination outcomes",
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	cfgFile      string
	dryRun       bool
	printConfig  bool
	historyLimit int
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default /etc/reaper/reaper.yaml or ./reaper.yaml)")
	scanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be terminated without sending signals")
	checkCmd.Flags().BoolVar(&printConfig, "print", false, "Print the effective configuration as YAML")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to show")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads and validates the config, logging warnings.
func loadConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		logger.Warn("config validation", zap.Error(w))
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			logger.Error("config validation", zap.Error(f))
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	if cfg.Source == "" {
		logger.Info("no config file found, using defaults")
	}
	return cfg, nil
}

func dataDir(cfg *config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return infra.DetectPaths().DataDir
}

func openJournal(cfg *config.Config) (*infra.EncryptedJournal, error) {
	return infra.OpenJournal(dataDir(cfg))
}

func newEnforcer(cfg *config.Config, effective domain.Config, logger *zap.Logger) *usecase.Enforcer {
	terminator := usecase.NewTerminator(infra.NewSignalController(), logger)
	return usecase.NewEnforcer(
		infra.NewProcessTable(logger),
		policy.NewRuleStore(effective.Rules...),
		terminator,
		effective,
		logger,
		usecase.WithMaxConcurrent(cfg.MaxConcurrent),
	)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	bootLogger, _ := zap.NewDevelopment()
	cfg, err := loadConfig(bootLogger)
	_ = bootLogger.Sync()
	if err != nil {
		return err
	}

	logger := infra.NewLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	effective := cfg.Effective()
	if len(effective.Rules) == 0 {
		logger.Warn("no detection rules configured, nothing will be terminated")
	}
	logger.Info("configuration loaded",
		zap.String("source", cfg.Source),
		zap.Stringer("config", effective))

	var journal domain.Journal
	if cfg.Journal {
		j, err := openJournal(cfg)
		if err != nil {
			logger.Warn("journal unavailable, outcomes will only be logged", zap.Error(err))
		} else {
			defer j.Close()
			journal = j
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopCfg := daemon.DefaultConfig()
	loopCfg.CheckInterval = effective.CheckInterval()
	loopCfg.HistoryRetention = cfg.HistoryRetention

	reaper := daemon.NewReaper(
		loopCfg,
		newEnforcer(cfg, effective, logger),
		journal,
		[]domain.OutcomeReporter{infra.NewLogReporter(logger)},
		domain.Daemon{
			PID:        os.Getpid(),
			StartedAt:  time.Now(),
			AppVersion: Version,
			Mode:       infra.DetectPaths().Mode.String(),
		},
		logger,
	)

	err = reaper.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.DryRun = true
	}
	effective := cfg.Effective()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("\n=== Running Scan ===")
	if effective.DryRun {
		fmt.Println("(dry run: no signals will be sent)")
	}

	result := newEnforcer(cfg, effective, logger).RunTick(ctx, nil)
	if result.Skipped {
		return fmt.Errorf("process snapshot failed: %w", result.Err)
	}

	if cfg.Journal {
		if j, err := openJournal(cfg); err == nil {
			if err := j.Report(context.WithoutCancel(ctx), result); err != nil {
				logger.Warn("failed to record scan outcomes", zap.Error(err))
			}
			j.Close()
		}
	}

	fmt.Printf("\nScanned %d processes, flagged %d\n", result.Scanned, result.Flagged)
	if result.RejectedProcs > 0 || result.RejectedRules > 0 {
		fmt.Printf("Skipped %d invalid processes, %d invalid rules\n", result.RejectedProcs, result.RejectedRules)
	}
	if len(result.Records) > 0 {
		fmt.Println()
		printRecords(result.Records)
	}
	fmt.Println("\n====================")
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Detection Rules ===")
	rules := cfg.Effective().Rules
	if len(rules) == 0 {
		fmt.Println("\nNo rules configured.")
	}
	for _, r := range rules {
		fmt.Printf("  %s\n", r)
	}

	fmt.Println("\n=== Presets ===")
	for _, name := range policy.PresetNames() {
		p, _ := policy.LookupPreset(name)
		fmt.Printf("  %-14s %s\n", name, p.Description)
	}
	fmt.Println("\n=======================")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source := cfg.Source
	if source == "" {
		source = "(defaults, no config file found)"
	}
	fmt.Printf("Config: %s\n", source)

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %v\n", w)
	}
	for _, f := range result.Fatals {
		fmt.Printf("  error:   %v\n", f)
	}

	if printConfig {
		out, err := cfg.ToYAML()
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Printf("\n%s", out)
	}

	if result.HasFatals() {
		return fmt.Errorf("config has %d error(s)", len(result.Fatals))
	}
	fmt.Printf("OK: %s\n", cfg.Effective())
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(zap.NewNop())
	if err != nil {
		return err
	}
	journal, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	records, err := journal.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No termination outcomes recorded.")
		return nil
	}
	printRecords(records)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(zap.NewNop())
	if err != nil {
		return err
	}
	journal, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	status, err := journal.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	fmt.Println("\n=== reaper status ===")
	fmt.Printf("Journal: %s\n", journal.Path())
	if status == nil {
		fmt.Println("Daemon:  never started")
		return nil
	}

	state := "NOT RUNNING"
	if infra.NewSignalController().IsAlive(status.PID) {
		state = "running"
	}
	fmt.Printf("Daemon:  %s (PID %d, version %s)\n", state, status.PID, status.AppVersion)
	if status.Mode != "" {
		fmt.Printf("Mode:    %s\n", status.Mode)
	}
	fmt.Printf("Started: %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("Last heartbeat: %s ago\n", time.Since(status.LastHeartbeat).Truncate(time.Second))
	fmt.Println("=====================")
	return nil
}

func printRecords(records []domain.TerminationRecord) {
	fmt.Printf("%-20s %-8s %-20s %-16s %-8s %-18s %s\n",
		"TIME", "PID", "NAME", "RULE", "PRIO", "RESULT", "DURATION")
	for _, r := range records {
		result := r.Result.String()
		if r.DryRun {
			result += " (dry)"
		}
		fmt.Printf("%-20s %-8d %-20s %-16s %-8s %-18s %dms\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.PID, truncate(r.Name, 20), truncate(r.Rule, 16), r.Priority, result, r.DurationMs)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "~"
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("reaper %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
