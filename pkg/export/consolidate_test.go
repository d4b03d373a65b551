package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEventsFile(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.jsonl")

	content := ""
	for _, line := range lines {
		content += line + "\n"
	}

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestConsolidateTransactions(t *testing.T) {
	eventsPath := writeEventsFile(t,
		`{"request_id":"r1","url":"https://example.com/api/users","method":"GET","status":200,"response_body":"{\"ok\":true}"}`,
		`{"request_id":"r2","url":"https://example.com/api/login","method":"POST","status":401,"failed":false}`,
		`{"request_id":"r1","url":"https://example.com/api/users","method":"GET","status":304}`,
	)

	outPath := filepath.Join(t.TempDir(), "consolidated.json")

	got, err := ConsolidateTransactions(eventsPath, outPath)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/api/users", got["r1"].URL)
	// Later records for the same id win.
	assert.Equal(t, 304, got["r1"].Status)
	assert.Equal(t, "POST", got["r2"].Method)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"r1"`)
}

func TestConsolidateTransactions_Idempotent(t *testing.T) {
	eventsPath := writeEventsFile(t,
		`{"request_id":"b","url":"https://example.com/b","method":"GET"}`,
		`{"request_id":"a","url":"https://example.com/a","method":"GET"}`,
	)

	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")

	_, err := ConsolidateTransactions(eventsPath, first)
	require.NoError(t, err)

	_, err = ConsolidateTransactions(eventsPath, second)
	require.NoError(t, err)

	firstData, err := os.ReadFile(first)
	require.NoError(t, err)

	secondData, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, string(firstData), string(secondData))
}

func TestConsolidateTransactions_MalformedLinesSkipped(t *testing.T) {
	eventsPath := writeEventsFile(t,
		`{"request_id":"good","url":"https://example.com","method":"GET"}`,
		`{definitely not json`,
		``,
		`{"url":"https://example.com/anonymous","method":"GET"}`,
	)

	got, err := ConsolidateTransactions(eventsPath, "")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Contains(t, got, "good")
	// Records without an id get a line-derived key.
	assert.Contains(t, got, "unknown_4")
}

func TestConsolidateTransactions_MissingFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out", "consolidated.json")

	got, err := ConsolidateTransactions(filepath.Join(dir, "nope.jsonl"), outPath)
	require.NoError(t, err)
	assert.Empty(t, got)

	// The output file is still written, holding an empty mapping.
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
