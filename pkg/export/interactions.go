package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// InteractionReport is the consolidated output of an interaction export:
// every recorded interaction plus aggregate counts.
type InteractionReport struct {
	Interactions []models.Interaction `json:"interactions"`
	Summary      InteractionSummary   `json:"summary"`
}

// InteractionSummary aggregates recorded interactions.
type InteractionSummary struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	ByURL  map[string]int `json:"by_url"`
}

// ConsolidateInteractions reads a line-delimited interaction log and
// aggregates it into a report. A missing source file yields an empty list
// and a zero-valued summary; malformed lines are skipped.
func ConsolidateInteractions(eventsPath, outPath string) (*InteractionReport, error) {
	log := logger.WithComponent("export")

	report := &InteractionReport{
		Interactions: []models.Interaction{},
		Summary: InteractionSummary{
			ByType: map[string]int{},
			ByURL:  map[string]int{},
		},
	}

	file, err := os.Open(eventsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open interactions file: %w", err)
		}

		log.Warn().Str("path", eventsPath).Msg("interaction events file not found")
	} else {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var interaction models.Interaction
			if err := json.Unmarshal(line, &interaction); err != nil {
				log.Warn().Err(err).Msg("skipping malformed interaction record")
				continue
			}

			report.Interactions = append(report.Interactions, interaction)
			report.Summary.ByType[interaction.Type]++
			report.Summary.ByURL[interaction.URL]++
		}

		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read interactions file: %w", err)
		}
	}

	report.Summary.Total = len(report.Interactions)

	if outPath != "" {
		if err := writeJSONFile(outPath, report); err != nil {
			return nil, err
		}

		log.Info().Int("interactions", report.Summary.Total).Str("path", outPath).Msg("interaction report written")
	}

	return report, nil
}
