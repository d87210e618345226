package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validateConfig = `
elasticsearch:
  uri: es.local
  port: "9201"
mongo:
  uri: mongodb://db.local:27017
filter:
  common_timestamp: "@timestamp"
  sync_field: _sync
  common_index_format: "{db}-{coll}"
index:
  - db: app
    coll: events
    timestamp: created
    tsformat: "%Y-%m-%d"
    type: event
  - db: app
    coll: users
select:
  - "metrics:-tmp scratch"
`

func runValidateCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestValidate_TextGolden(t *testing.T) {
	out, err := runValidateCommand(t, "text", writeConfig(t, validateConfig))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "validate_text", out.Bytes())
}

func TestValidate_JSON(t *testing.T) {
	out, err := runValidateCommand(t, "json", writeConfig(t, validateConfig))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "http://es.local:9201", resp.Data.Destination)
	assert.Equal(t, "_sync__INC", resp.Data.Policy["sync_inc_field"])
	require.Len(t, resp.Data.Collections, 2)
	assert.Equal(t, CollectionTarget{
		Collection:      "app.events",
		Index:           "app-events",
		Type:            "event",
		TimestampField:  "created",
		TimestampFormat: "%Y-%m-%d",
	}, resp.Data.Collections[0])
	assert.Equal(t, []string{"metrics:-tmp scratch"}, resp.Data.Selectors)
}

func TestValidate_CredentialsAreNotPrinted(t *testing.T) {
	path := writeConfig(t, validateConfig)
	t.Setenv("M2E_ES_USER", "robot")
	t.Setenv("M2E_ES_PASSWORD", "hunter2")

	out, err := runValidateCommand(t, "text", path)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "hunter2")
}

func TestValidate_InvalidConfig(t *testing.T) {
	out, err := runValidateCommand(t, "text", writeConfig(t, "index: [{db: app}]\n"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [CONFIGURATION]")
	assert.Contains(t, out.String(), "db and coll are required")
}

func TestValidate_MissingFile(t *testing.T) {
	clearEnv(t)
	out, err := runValidateCommand(t, "json", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFIGURATION", resp.Error.Code)
}
