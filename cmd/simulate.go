package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sim-replay/sim-replay/replay"
	"github.com/sim-replay/sim-replay/schelling"
)

var (
	simConfigPath string

	// CLI flags for the cache
	simCachePath   string
	simStoreKind   string
	simCompression string
	simStepRate    int

	// CLI flags for the Schelling model
	simWidth         int
	simHeight        int
	simDensity       float64
	simMinorityShare float64
	simHomophily     int
	simSeed          int64
	simMaxSteps      int
)

// simulateCmd runs the model live and records every step's state to the cache.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the Schelling model and record its steps to the cache",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadSimulateConfig(cmd)

		comp, err := replay.ParseCompression(cfg.Cache.Compression)
		if err != nil {
			logrus.Fatalf("Invalid compression: %v", err)
		}

		model, err := schelling.New(cfg.Model)
		if err != nil {
			logrus.Fatalf("Failed to build model: %v", err)
		}

		header := replay.NewHeader("schelling", cfg.Cache.StepRate, comp)
		if header.Params, err = replay.EncodeSnapshot(cfg.Model); err != nil {
			logrus.Fatalf("Failed to encode model params: %v", err)
		}

		store, closeDB, err := openRecordStore(cfg.Cache, header)
		if err != nil {
			logrus.Fatalf("Failed to open cache store: %v", err)
		}
		if closeDB != nil {
			defer closeDB()
		}

		logrus.Infof("Recording run %s: %dx%d grid, %d agents, homophily=%d, seed=%d",
			header.RunID, cfg.Model.Width, cfg.Model.Height, model.Agents(),
			cfg.Model.Homophily, cfg.Model.Seed)
		startTime := time.Now()

		session, err := replay.NewSession(model, store, replay.ModeRecord)
		if err != nil {
			logrus.Fatalf("Failed to start recording session: %v", err)
		}
		if err := session.Run(); err != nil {
			logrus.Fatalf("Recording failed at step %d: %v", session.StepCount(), err)
		}

		logrus.Infof("Run finished after %d steps in %v: %d/%d agents happy",
			session.StepCount(), time.Since(startTime).Round(time.Millisecond),
			model.Happy(), model.Agents())
	},
}

// loadSimulateConfig layers the optional config file over the defaults, then
// applies whichever flags were set explicitly.
func loadSimulateConfig(cmd *cobra.Command) RunConfig {
	cfg := DefaultRunConfig()
	if simConfigPath != "" {
		var err error
		if cfg, err = LoadRunConfig(simConfigPath); err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("cache") {
		cfg.Cache.Path = simCachePath
	}
	if flags.Changed("store") {
		cfg.Cache.Store = simStoreKind
	}
	if flags.Changed("compression") {
		cfg.Cache.Compression = simCompression
	}
	if flags.Changed("step-rate") {
		cfg.Cache.StepRate = simStepRate
	}
	if flags.Changed("width") {
		cfg.Model.Width = simWidth
	}
	if flags.Changed("height") {
		cfg.Model.Height = simHeight
	}
	if flags.Changed("density") {
		cfg.Model.Density = simDensity
	}
	if flags.Changed("minority-share") {
		cfg.Model.MinorityShare = simMinorityShare
	}
	if flags.Changed("homophily") {
		cfg.Model.Homophily = simHomophily
	}
	if flags.Changed("seed") {
		cfg.Model.Seed = simSeed
	}
	if flags.Changed("max-steps") {
		cfg.Model.MaxSteps = simMaxSteps
	}
	return cfg
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "", "Path to a YAML run config file")

	simulateCmd.Flags().StringVar(&simCachePath, "cache", "schelling.cache", "Cache file (or SQLite database) path")
	simulateCmd.Flags().StringVar(&simStoreKind, "store", "file", "Cache store kind (file, stream, sqlite)")
	simulateCmd.Flags().StringVar(&simCompression, "compression", "none", "Per-step snapshot compression (none, gzip, zstd)")
	simulateCmd.Flags().IntVar(&simStepRate, "step-rate", 1, "Cache only every n-th step")

	simulateCmd.Flags().IntVar(&simWidth, "width", 20, "Grid width")
	simulateCmd.Flags().IntVar(&simHeight, "height", 20, "Grid height")
	simulateCmd.Flags().Float64Var(&simDensity, "density", 0.8, "Fraction of cells holding an agent")
	simulateCmd.Flags().Float64Var(&simMinorityShare, "minority-share", 0.2, "Fraction of agents of the minority type")
	simulateCmd.Flags().IntVar(&simHomophily, "homophily", 3, "Like-typed neighbors an agent needs to be happy")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 42, "Seed for deterministic placement and movement")
	simulateCmd.Flags().IntVar(&simMaxSteps, "max-steps", 1000, "Step cap (0 = run until everyone is happy)")

	rootCmd.AddCommand(simulateCmd)
}
