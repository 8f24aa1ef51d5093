package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmtrader/agent"
	"llmtrader/broker"
	"llmtrader/broker/alpaca"
	"llmtrader/broker/sim"
	"llmtrader/config"
	"llmtrader/equity"
	"llmtrader/executor"
	"llmtrader/ledger"
	"llmtrader/pkg/logger"
	"llmtrader/runner"
)

var rootCmd = &cobra.Command{
	Use:   "llmtrader",
	Short: "An automated trading executor driven by LLM-generated signals",
	Long: `llmtrader turns model-generated trading decisions into risk-managed
broker orders.

It provides tools for:
  - Running the continuous trading loop against Alpaca
  - Executing a single trading cycle
  - Inspecting recorded orders, decisions, and the equity curve
  - Cancelling open orders

Every order submission is idempotent: re-running a cycle never duplicates
an order.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var (
	cfgPath string
	dryRun  bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML or JSON); environment variables apply on top")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "trade against a simulated in-memory broker instead of Alpaca")
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromFile(cfgPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *ledger.Store
	gateway broker.Gateway
	runner  *runner.Runner
	exec    *executor.Executor
}

func buildApp() (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(cfg.Ledger.DBPath)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}

	var gateway broker.Gateway
	if dryRun {
		log.Info("dry run: orders go to the simulated broker")
		gateway = sim.New(broker.Account{Equity: 100000, Cash: 100000, BuyingPower: 200000})
	} else {
		gateway = alpaca.New(cfg.Alpaca, log)
	}
	gen := agent.New(cfg.LLM, cfg.Strategy, log)
	exec := executor.New(gateway, store, cfg.Strategy, log)
	tracker := equity.NewTracker(store, cfg.Strategy, log)
	run := runner.New(gateway, gen, store, exec, tracker, *cfg, log)

	cleanup := func() {
		store.Close()
		log.Sync()
	}
	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		gateway: gateway,
		runner:  run,
		exec:    exec,
	}, cleanup, nil
}

// openStore wires just the ledger for read-side commands.
func openStore() (*config.Config, *ledger.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.Open(cfg.Ledger.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
