package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sim-replay/sim-replay/replay"
	"github.com/sim-replay/sim-replay/schelling"
)

var (
	replayCachePath string
	replayStoreKind string
	replayRunID     string
)

// replayCmd reconstructs a recorded run from the cache, step by step, without
// recomputing anything.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded run from the cache",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := CacheConfig{Path: replayCachePath, Store: replayStoreKind, RunID: replayRunID}

		store, closeDB, err := openReplayStore(cfg)
		if err != nil {
			logrus.Fatalf("Failed to open cache: %v", err)
		}
		if closeDB != nil {
			defer closeDB()
		}

		model, err := modelFromHeader(store.Header())
		if err != nil {
			logrus.Fatalf("Failed to rebuild model: %v", err)
		}

		session, err := replay.NewSession(model, store, replay.ModeReplay)
		if err != nil {
			logrus.Fatalf("Failed to start replay session: %v", err)
		}

		logrus.Infof("Replaying run %s (%s, recorded %s)",
			store.Header().RunID, store.Header().Model, store.Header().CreatedAt)

		for session.Running() {
			if err := session.Step(); err != nil {
				logrus.Fatalf("Replay failed at step %d: %v", session.StepCount(), err)
			}
			logrus.Debugf("[step %04d] happy=%d/%d moved=%d",
				model.StepCount(), model.Happy(), model.Agents(), model.Moved())
		}

		logrus.Infof("Replay finished after %d steps: %d/%d agents happy",
			session.StepCount(), model.Happy(), model.Agents())
	},
}

// modelFromHeader rebuilds a model shaped like the recorded one. The recorded
// parameters are required: without them a fresh model might disagree with the
// cached snapshots on grid size.
func modelFromHeader(header *replay.Header) (*schelling.Model, error) {
	var params schelling.Params
	if len(header.Params) == 0 {
		logrus.Warn("Cache header carries no model params; using defaults")
		params = schelling.DefaultParams()
	} else if err := replay.DecodeSnapshot(header.Params, &params); err != nil {
		return nil, err
	}
	return schelling.New(params)
}

func init() {
	replayCmd.Flags().StringVar(&replayCachePath, "cache", "schelling.cache", "Cache file (or SQLite database) path")
	replayCmd.Flags().StringVar(&replayStoreKind, "store", "file", "Cache store kind (file, stream, sqlite)")
	replayCmd.Flags().StringVar(&replayRunID, "run", "", "SQLite only: run ID to replay (default latest)")

	rootCmd.AddCommand(replayCmd)
}
