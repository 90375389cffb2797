package output

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

func capture(target **os.File, f func()) string {
	old := *target
	r, w, _ := os.Pipe()
	*target = w

	f()

	w.Close()
	*target = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestMessages(t *testing.T) {
	out := capture(&os.Stdout, func() { Success("Published %d events", 3) })
	assert.Equal(t, "✓ Published 3 events\n", out)

	out = capture(&os.Stderr, func() { Error("Failed to reach %s", "nats") })
	assert.Equal(t, "✗ Failed to reach nats\n", out)

	out = capture(&os.Stdout, func() { Info("Queue depth %d", 7) })
	assert.Equal(t, "Queue depth 7\n", out)

	out = capture(&os.Stdout, func() { Warn("Purging %d entries", 2) })
	assert.Equal(t, "⚠ Purging 2 entries\n", out)
}

type entry struct {
	JobID    string `json:"job_id"`
	Attempts int    `json:"attempts"`
}

func TestWriteJSON_Indented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]any{"entry": entry{JobID: "job_1", Attempts: 3}}))

	assert.Contains(t, buf.String(), "  \"entry\":")
	assert.Contains(t, buf.String(), "    \"job_id\": \"job_1\"")

	var parsed map[string]entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, 3, parsed["entry"].Attempts)
}

func TestWriteYAML_UsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, []entry{{JobID: "job_1", Attempts: 3}}))

	assert.Contains(t, buf.String(), "job_id: job_1")

	var parsed []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed, 1)
	assert.Equal(t, 3, parsed[0]["attempts"])
}

func TestStructured(t *testing.T) {
	handled, err := Structured(FormatTable, nil)
	assert.False(t, handled)
	assert.NoError(t, err)

	handled, err = Structured("", nil)
	assert.False(t, handled)
	assert.NoError(t, err)

	handled, err = Structured("xml", nil)
	assert.True(t, handled)
	assert.Error(t, err)
}

func TestTable_Render(t *testing.T) {
	table := NewTable([]string{"ID", "Reason"})
	table.AddRow([]string{"dlq_1", "attempts_exhausted"})
	table.AddRow([]string{"dlq_200", "x"})

	var buf bytes.Buffer
	table.RenderTo(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID       Reason              ", lines[0])
	assert.Equal(t, "-------  ------------------  ", lines[1])
	assert.Equal(t, "dlq_1    attempts_exhausted  ", lines[2])
	assert.Equal(t, "dlq_200  x                   ", lines[3])
}

func TestTable_Render_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTable([]string{"Name", "Status"}).RenderTo(&buf)

	assert.Contains(t, buf.String(), "Name")
	assert.Contains(t, buf.String(), "----")
}

func TestTable_Render_ShortAndLongRows(t *testing.T) {
	table := NewTable([]string{"A", "B"})
	table.AddRow([]string{"1"})
	table.AddRow([]string{"1", "2", "3"})

	var buf bytes.Buffer
	assert.NotPanics(t, func() { table.RenderTo(&buf) })
	assert.NotContains(t, buf.String(), "3")
}
