package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/source"
	"github.com/roach88/mongo2elastic/internal/syncerr"
)

const sampleYAML = `
elasticsearch:
  user: elastic
  password: secret
  uri: es.local
  port: "9201"
mongo:
  uri: mongodb://db.local:27017
filter:
  common_timestamp: "@timestamp"
  common_field_format: "{field}_{coll}__{type}"
  sync_field: _sync
  common_index_format: "{db}-{coll}"
index:
  - db: app
    coll: events
    timestamp: created
    tsformat: "%Y-%m-%d %H:%M:%S"
    type: event
    script: status_text
    script_args:
      field: status
select:
  - "metrics:-tmp"
`

const sampleCUE = `
package m2e

elasticsearch: {
	uri:  "es.local"
	port: "9201"
}
filter: {
	common_timestamp: "@timestamp"
	sync_field:       "_sync"
}
index: [{
	db:        "app"
	coll:      "events"
	timestamp: "created"
}]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "m2e.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.local:27017", cfg.MongoURI)
	assert.Equal(t, "http://es.local:9201", cfg.Elastic.Address())
	assert.Equal(t, "elastic", cfg.Elastic.User)
	assert.Equal(t, "secret", cfg.Elastic.Password)

	assert.Equal(t, "@timestamp", cfg.Policy.CommonTimestamp)
	assert.Equal(t, "_sync", cfg.Policy.SyncField)
	assert.Equal(t, "{field}_{coll}__{type}", cfg.Policy.FieldFormat.String())
	assert.Equal(t, "{db}-{coll}", cfg.Policy.IndexFormat.String())
	assert.Nil(t, cfg.Policy.TypeFormat)

	require.Len(t, cfg.Collections, 1)
	c := cfg.Collections[0]
	assert.Equal(t, "app.events", c.FullName())
	assert.Equal(t, "created", c.TimestampField)
	assert.Equal(t, "%Y-%m-%d %H:%M:%S", c.TimestampFormat)
	assert.Equal(t, "event", c.Type)
	require.NotNil(t, c.Hook)

	doc := document.New(document.F("status", 1))
	require.NoError(t, c.Hook.Mutate(doc))
	v, _ := doc.Get("status")
	assert.Equal(t, "NOK", v)

	require.Len(t, cfg.Selectors, 1)
	assert.Equal(t, "metrics:-tmp", cfg.Selectors[0].String())
}

func TestBuild_ChainsScripts(t *testing.T) {
	cfg, err := Build(&File{Index: []IndexSection{{
		DB:         "app",
		Coll:       "events",
		Script:     "status_text",
		ScriptArgs: map[string]string{"field": "status"},
		Scripts: []ScriptSection{
			{Name: "status_text", Args: map[string]string{"field": "level", "ok_text": "fine"}},
			{Name: "reformat_date", Args: map[string]string{"field": "created", "format": "%Y-%m"}},
		},
	}}})
	require.NoError(t, err)
	require.Len(t, cfg.Collections, 1)
	require.NotNil(t, cfg.Collections[0].Hook)

	doc := document.New(
		document.F("status", 0),
		document.F("level", 0),
		document.F("created", time.Date(2018, 1, 2, 18, 43, 12, 0, time.UTC)),
	)
	require.NoError(t, cfg.Collections[0].Hook.Mutate(doc))

	status, _ := doc.Get("status")
	level, _ := doc.Get("level")
	created, _ := doc.Get("created")
	assert.Equal(t, "OK", status)
	assert.Equal(t, "fine", level)
	assert.Equal(t, "2018-01", created)
}

func TestLoad_CUEFileAndDirectory(t *testing.T) {
	path := writeFile(t, "m2e.cue", sampleCUE)

	for name, p := range map[string]string{"file": path, "dir": filepath.Dir(path)} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(p)
			require.NoError(t, err)

			assert.Equal(t, source.DefaultMongoURI, cfg.MongoURI)
			assert.Equal(t, "http://es.local:9201", cfg.Elastic.Address())
			assert.Equal(t, "_sync", cfg.Policy.SyncField)
			require.Len(t, cfg.Collections, 1)
			assert.Equal(t, "created", cfg.Collections[0].TimestampField)
			assert.Nil(t, cfg.Collections[0].Hook)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("M2E_MONGO_URI", "mongodb://env:27017")
	t.Setenv("M2E_ES_URL", "https://es.example.com:443")
	t.Setenv("M2E_ES_USER", "robot")
	t.Setenv("M2E_ES_PASSWORD", "hunter2")

	cfg, err := Load(writeFile(t, "m2e.yml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://env:27017", cfg.MongoURI)
	assert.Equal(t, "https://es.example.com:443", cfg.Elastic.Address())
	assert.Equal(t, "robot", cfg.Elastic.User)
	assert.Equal(t, "hunter2", cfg.Elastic.Password)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown extension", "m2e.ini", "[filter]"},
		{"unknown yaml key", "m2e.yaml", "filters: {}\n"},
		{"bad cue", "m2e.cue", "package m2e\n\nindex: [\n"},
		{"unknown placeholder", "m2e.yaml", "filter: {common_field_format: \"{nope}\"}\nselect: [\"a:-x\"]\n"},
		{"name placeholder not allowed", "m2e.yaml", "filter: {common_index_format: \"{field}\"}\nselect: [\"a:-x\"]\n"},
		{"same timestamp and sync", "m2e.yaml", "filter: {common_timestamp: t, sync_field: t}\nselect: [\"a:-x\"]\n"},
		{"no collections", "m2e.yaml", "filter: {sync_field: _sync}\n"},
		{"missing coll", "m2e.yaml", "index: [{db: app}]\n"},
		{"format without field", "m2e.yaml", "index: [{db: app, coll: c, tsformat: \"%Y\"}]\n"},
		{"unknown hook", "m2e.yaml", "index: [{db: app, coll: c, script: nope}]\n"},
		{"hook missing args", "m2e.yaml", "index: [{db: app, coll: c, script: reformat_date}]\n"},
		{"args without script", "m2e.yaml", "index: [{db: app, coll: c, script_args: {field: x}}]\n"},
		{"unknown chained hook", "m2e.yaml", "index: [{db: app, coll: c, scripts: [{name: nope}]}]\n"},
		{"bad selector", "m2e.yaml", "select: [\"app\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			require.Error(t, err)
			assert.True(t, syncerr.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, syncerr.IsConfiguration(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnv_ApplyKeepsFileValuesWhenUnset(t *testing.T) {
	f := &File{}
	f.Mongo.URI = "mongodb://file"
	f.Elasticsearch.User = "file-user"

	Env{ESPassword: "pw"}.Apply(f)

	assert.Equal(t, "mongodb://file", f.Mongo.URI)
	assert.Equal(t, "file-user", f.Elasticsearch.User)
	assert.Equal(t, "pw", f.Elasticsearch.Password)
}
