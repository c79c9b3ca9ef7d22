package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sim-replay/sim-replay/replay"
)

var (
	inspectCachePath string
	inspectStoreKind string
	inspectRunID     string
	inspectListRuns  bool
)

// inspectCmd prints what a cache contains without replaying it into a model.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a cache's header and step statistics",
	Run: func(cmd *cobra.Command, args []string) {
		if inspectListRuns {
			listRuns()
			return
		}

		cfg := CacheConfig{Path: inspectCachePath, Store: inspectStoreKind, RunID: inspectRunID}
		store, closeDB, err := openReplayStore(cfg)
		if err != nil {
			logrus.Fatalf("Failed to open cache: %v", err)
		}
		if closeDB != nil {
			defer closeDB()
		}
		defer store.Close()

		writeHeaderToStdout(store.Header())

		steps := 0
		var totalBytes int64
		for {
			data, err := store.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				logrus.Fatalf("Failed to read snapshot %d: %v", steps, err)
			}
			steps++
			totalBytes += int64(len(data))
		}
		fmt.Printf("snapshots: %d\n", steps)
		fmt.Printf("snapshot_bytes: %d\n", totalBytes)
	},
}

// listRuns prints the headers of all runs in a SQLite cache database.
func listRuns() {
	if inspectStoreKind != "sqlite" {
		logrus.Fatalf("--runs requires --store sqlite; %s caches hold a single run", inspectStoreKind)
	}
	db, err := openCacheDB(inspectCachePath)
	if err != nil {
		logrus.Fatalf("Failed to open cache database: %v", err)
	}
	defer db.Close()

	headers, err := db.Runs()
	if err != nil {
		logrus.Fatalf("Failed to list runs: %v", err)
	}
	for _, h := range headers {
		fmt.Printf("%s  %s  steps=%d  recorded=%s\n", h.RunID, h.Model, h.Steps, h.CreatedAt)
	}
}

// writeHeaderToStdout prints the header as YAML, omitting the opaque params
// blob.
func writeHeaderToStdout(header *replay.Header) {
	h := *header
	h.Params = nil
	out, err := yaml.Marshal(&h)
	if err != nil {
		logrus.Fatalf("Failed to marshal header: %v", err)
	}
	os.Stdout.Write(out)
}

func init() {
	inspectCmd.Flags().StringVar(&inspectCachePath, "cache", "schelling.cache", "Cache file (or SQLite database) path")
	inspectCmd.Flags().StringVar(&inspectStoreKind, "store", "file", "Cache store kind (file, stream, sqlite)")
	inspectCmd.Flags().StringVar(&inspectRunID, "run", "", "SQLite only: run ID to inspect (default latest)")
	inspectCmd.Flags().BoolVar(&inspectListRuns, "runs", false, "SQLite only: list all recorded runs")

	rootCmd.AddCommand(inspectCmd)
}
