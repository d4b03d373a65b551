// Package export implements the batch file exports run over a recorded
// session: consolidated network transactions, HAR 1.2 documents, and the
// interaction summary. These operate on line-delimited event logs written
// by the external per-session writer and are not part of the live
// pipeline.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tracelight/tracelight/pkg/logger"
)

// ConsolidatedTransaction is the merged per-request record produced by
// consolidation.
type ConsolidatedTransaction struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	ResourceType    string            `json:"type,omitempty"`
	Status          int               `json:"status,omitempty"`
	StatusText      string            `json:"status_text,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	PostData        any               `json:"post_data,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	MimeType        string            `json:"mime_type,omitempty"`
	ErrorText       string            `json:"error_text,omitempty"`
	Failed          bool              `json:"failed"`
}

// transactionRecord is one line of the network event log.
type transactionRecord struct {
	RequestID string `json:"request_id"`
	ConsolidatedTransaction
	Timestamp int64 `json:"timestamp"`
}

// ConsolidateTransactions reads a line-delimited transaction log, keys
// each record by its request id, and merges them into one mapping. A
// missing source file yields an empty mapping, not an error; malformed
// lines are skipped. When outPath is non-empty the mapping is also
// persisted as indented JSON.
func ConsolidateTransactions(eventsPath, outPath string) (map[string]ConsolidatedTransaction, error) {
	log := logger.WithComponent("export")

	consolidated := make(map[string]ConsolidatedTransaction)

	file, err := os.Open(eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", eventsPath).Msg("network events file not found")

			if outPath != "" {
				if err := writeJSONFile(outPath, consolidated); err != nil {
					return consolidated, err
				}
			}

			return consolidated, nil
		}

		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record transactionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			log.Warn().Int("line", lineNum).Err(err).Msg("skipping malformed transaction record")
			continue
		}

		id := record.RequestID
		if id == "" {
			id = fmt.Sprintf("unknown_%d", lineNum)
		}

		consolidated[id] = record.ConsolidatedTransaction
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	if outPath != "" {
		if err := writeJSONFile(outPath, consolidated); err != nil {
			return consolidated, err
		}

		log.Info().Int("transactions", len(consolidated)).Str("path", outPath).Msg("consolidated transactions written")
	}

	return consolidated, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
