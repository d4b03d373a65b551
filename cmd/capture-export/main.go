// capture-export post-processes a recorded session directory: it
// consolidates network transactions, generates a HAR archive, and
// aggregates interactions.
package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/tracelight/tracelight/pkg/export"
	"github.com/tracelight/tracelight/pkg/logger"
)

func main() {
	sessionDir := flag.String("session-dir", "", "Recorded session directory")
	title := flag.String("title", "Tracelight Session", "HAR log title")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := logger.Init(logger.Config{Debug: *debug}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if *sessionDir == "" {
		log.Fatal("session-dir is required")
	}

	mainLogger := logger.WithComponent("capture-export")

	networkEvents := filepath.Join(*sessionDir, "network", "events.jsonl")
	interactionEvents := filepath.Join(*sessionDir, "interaction", "events.jsonl")

	transactions, err := export.ConsolidateTransactions(networkEvents,
		filepath.Join(*sessionDir, "network", "consolidated_transactions.json"))
	if err != nil {
		log.Fatalf("Failed to consolidate transactions: %v", err)
	}

	mainLogger.Info().Int("transactions", len(transactions)).Msg("transactions consolidated")

	har, err := export.GenerateHAR(networkEvents,
		filepath.Join(*sessionDir, "network", "network.har"), *title)
	if err != nil {
		log.Fatalf("Failed to generate HAR: %v", err)
	}

	mainLogger.Info().Int("entries", len(har.Log.Entries)).Msg("HAR generated")

	report, err := export.ConsolidateInteractions(interactionEvents,
		filepath.Join(*sessionDir, "interaction", "consolidated_interactions.json"))
	if err != nil {
		log.Fatalf("Failed to consolidate interactions: %v", err)
	}

	mainLogger.Info().Int("interactions", report.Summary.Total).Msg("interactions consolidated")
}
