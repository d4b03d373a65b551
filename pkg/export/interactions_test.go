package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateInteractions(t *testing.T) {
	eventsPath := writeEventsFile(t,
		`{"type":"click","url":"https://example.com/a","element":{"tag_name":"button"},"timestamp":1700000000000}`,
		`{"type":"click","url":"https://example.com/b","element":{"tag_name":"a"},"timestamp":1700000001000}`,
		`{"type":"keydown","url":"https://example.com/a","element":{"tag_name":"input"},"timestamp":1700000002000}`,
		`{not json`,
	)

	outPath := filepath.Join(t.TempDir(), "consolidated_interactions.json")

	report, err := ConsolidateInteractions(eventsPath, outPath)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, map[string]int{"click": 2, "keydown": 1}, report.Summary.ByType)
	assert.Equal(t, map[string]int{
		"https://example.com/a": 2,
		"https://example.com/b": 1,
	}, report.Summary.ByURL)

	require.Len(t, report.Interactions, 3)
	assert.Equal(t, "button", report.Interactions[0].Element.TagName)

	_, err = os.Stat(outPath)
	assert.NoError(t, err)
}

func TestConsolidateInteractions_MissingFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.json")

	report, err := ConsolidateInteractions(filepath.Join(dir, "nope.jsonl"), outPath)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Summary.Total)
	assert.Empty(t, report.Interactions)
	assert.Empty(t, report.Summary.ByType)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interactions": []`)
}
