package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/engine"
)

const eventsConfig = `
index:
  - db: app
    coll: events
`

func TestFull_IndexesAndPrintsTable(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events",
		doc(0, document.F("status", "ok")),
		doc(1, document.F("status", "failed")),
	)

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	out := h.out.String()
	assert.Contains(t, out, "DB.COLLECTION")
	assert.Contains(t, out, "app.events")
	assert.Contains(t, out, "app/events")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "INDEXED")
	assert.NotContains(t, out, "Test passed")

	assert.Len(t, h.dst.Docs("app", "events"), 2)
}

func TestFull_TestModeWritesNothing(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0, document.F("status", "ok")))

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{"--test", writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, h.out.String(), "OK")
	assert.Contains(t, h.out.String(), "\nTest passed successfully.\n")
	assert.Zero(t, h.dst.Writes())
}

func TestFull_MappingConflictExitsWithFailure(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "a", doc(0, document.F("f", "text")))
	h.src.Insert("app", "b", doc(1, document.F("f", 7)))

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{"-t", writeConfig(t, `
index:
  - {db: app, coll: a}
  - {db: app, coll: b}
`)})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, h.out.String(),
		"Dynamic Mapping test failed:\n\tOriginal field: app:a[f] (string)\n\tConflicting field: app:b[f] (int)\n")
	assert.NotContains(t, h.out.String(), "Test passed")
}

func TestSync_WithoutOrderingFieldFailsBeforeConnecting(t *testing.T) {
	clearEnv(t)
	out := &bytes.Buffer{}
	cmd := newModeCommand(&ModeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Mode:        engine.ModeSync,
		Connect:     failingConnector(t),
	})
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{writeConfig(t, eventsConfig)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [CONFIGURATION]")
}

func TestSync_ResumesFromDestination(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0), doc(10))
	body := `
filter:
  sync_field: _sync
index:
  - db: app
    coll: events
`
	path := writeConfig(t, body)

	first := h.command("text", engine.ModeSync)
	first.SetArgs([]string{path})
	require.NoError(t, first.Execute())
	require.Equal(t, 2, h.dst.Writes())

	h.src.Insert("app", "events", doc(20))
	h.out.Reset()

	second := h.command("text", engine.ModeSync, "run-2")
	second.SetArgs([]string{path})
	require.NoError(t, second.Execute())

	assert.Equal(t, 3, h.dst.Writes())
	assert.Contains(t, h.out.String(), "1/1")
}

func TestFull_SelectorOnMissingDatabase(t *testing.T) {
	h := newModeHarness()

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, "select: [\"ghost:-tmp\"]\n")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, h.out.String(), "MISSING_SOURCE")
}

func TestFull_SelectorExpandsCollections(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("logs", "web", doc(0))
	h.src.Insert("logs", "tmp", doc(1))

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, "select: [\"logs:-tmp\"]\n")})
	require.NoError(t, cmd.Execute())

	assert.Len(t, h.dst.Docs("logs", "web"), 1)
	assert.Empty(t, h.dst.Docs("logs", "tmp"))
}

func TestFull_MissingCollectionIsSkipped(t *testing.T) {
	h := newModeHarness()
	h.src.AddCollection("app", "other")

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	out := h.out.String()
	notice := strings.Index(out, `[ ! ] Collection "app.events" not found.`)
	skipped := strings.Index(out, "SKIPPED")
	require.NotEqual(t, -1, notice)
	require.NotEqual(t, -1, skipped)
	assert.Greater(t, notice, skipped, "notice is printed after the table")
}

func TestFull_DuplicateFieldAborts(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0, document.F("@ts", "already here")))

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, `
filter:
  common_timestamp: "@ts"
index:
  - db: app
    coll: events
`)})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, h.out.String(), "Error [DUPLICATE_GENERATED_FIELD]")
}

func TestFull_JSONReport(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0))

	cmd := h.command("json", engine.ModeFull)
	cmd.SetArgs([]string{writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   engine.RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, "completed", resp.Data.Outcome)
	require.Len(t, resp.Data.Collections, 1)
	assert.Equal(t, "INDEXED", resp.Data.Collections[0].Status)
	assert.Equal(t, int64(1), resp.Data.Collections[0].Docs)
	assert.NotContains(t, h.out.String(), "DB.COLLECTION")
}

func TestUpdate_TestModeReportsBacklog(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0, document.F("n", 1)), doc(1, document.F("n", 2)))

	cmd := h.command("text", engine.ModeUpdate)
	cmd.SetArgs([]string{"--test", writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, h.out.String(), "BEHIND BY 2 DOCS")
	assert.Zero(t, h.dst.Writes())
}

func TestFull_JournalAndHistory(t *testing.T) {
	h := newModeHarness()
	h.src.Insert("app", "events", doc(0), doc(1))
	journal := filepath.Join(t.TempDir(), "m2e.db")

	cmd := h.command("text", engine.ModeFull)
	cmd.SetArgs([]string{"--journal", journal, writeConfig(t, eventsConfig)})
	require.NoError(t, cmd.Execute())

	out := &bytes.Buffer{}
	history := NewHistoryCommand(&RootOptions{Format: "text"})
	history.SetOut(out)
	history.SetArgs([]string{"--journal", journal})
	require.NoError(t, history.Execute())
	assert.Contains(t, out.String(), "run-1")
	assert.Contains(t, out.String(), "2018-01-02T18:43:12Z")
	assert.Contains(t, out.String(), "completed")

	out = &bytes.Buffer{}
	history = NewHistoryCommand(&RootOptions{Format: "text"})
	history.SetOut(out)
	history.SetArgs([]string{"--journal", journal, "--collection", "app.events"})
	require.NoError(t, history.Execute())
	assert.Contains(t, out.String(), "app/events")
	assert.Contains(t, out.String(), "INDEXED")
}
