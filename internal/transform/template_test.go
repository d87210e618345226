package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		raw  string
		vars map[string]string
		want string
	}{
		{"{field}_{coll}__{type}", map[string]string{"field": "status", "coll": "metrics", "type": "string"}, "status_metrics__string"},
		{"{db}-{coll}", map[string]string{"db": "ops", "coll": "events"}, "ops-events"},
		{"plain", nil, "plain"},
		{"{{literal}}_{field}", map[string]string{"field": "x"}, "{literal}_x"},
		{"{field}", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			tmpl, err := ParseTemplate(tt.raw, FieldVars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tmpl.Format(tt.vars))
			assert.Equal(t, tt.raw, tmpl.String())
		})
	}
}

func TestParseTemplate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		allowed []string
		wantErr string
	}{
		{"unknown placeholder", "{field}_{nope}", FieldVars, "unknown placeholder {nope}"},
		{"field not allowed in index names", "{db}_{field}", NameVars, "unknown placeholder {field}"},
		{"unclosed", "{field", FieldVars, "unclosed"},
		{"stray close", "field}", FieldVars, "single '}'"},
		{"positional", "{}", FieldVars, "unknown placeholder {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.raw, tt.allowed)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTemplate_NilString(t *testing.T) {
	var tmpl *Template
	assert.Equal(t, "", tmpl.String())
}

func TestMustParseTemplate_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParseTemplate("{bad", FieldVars) })
}

func TestPolicy_Names(t *testing.T) {
	indexFmt := MustParseTemplate("{db}-{coll}", NameVars)
	typeFmt := MustParseTemplate("doc_{coll}", NameVars)

	tests := []struct {
		name      string
		policy    Policy
		coll      Collection
		wantIndex string
		wantType  string
	}{
		{"defaults", Policy{}, Collection{DB: "ops", Name: "events"}, "ops", "events"},
		{"formats", Policy{IndexFormat: indexFmt, TypeFormat: typeFmt}, Collection{DB: "ops", Name: "events"}, "ops-events", "doc_events"},
		{"overrides win", Policy{IndexFormat: indexFmt, TypeFormat: typeFmt}, Collection{DB: "ops", Name: "events", Index: "custom", Type: "t"}, "custom", "t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantIndex, tt.policy.IndexName(tt.coll))
			assert.Equal(t, tt.wantType, tt.policy.TypeName(tt.coll))
		})
	}
}

func TestPolicy_OrderingField(t *testing.T) {
	f, err := Policy{SyncField: "_sync", CommonTimestamp: "@ts"}.OrderingField()
	require.NoError(t, err)
	assert.Equal(t, "_sync", f)

	f, err = Policy{CommonTimestamp: "@ts"}.OrderingField()
	require.NoError(t, err)
	assert.Equal(t, "@ts", f)

	_, err = Policy{}.OrderingField()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIGURATION")
}

func TestPolicy_SyncIncField(t *testing.T) {
	assert.Equal(t, "", Policy{}.SyncIncField())
	assert.Equal(t, "_s__INC", Policy{SyncField: "_s"}.SyncIncField())
	assert.Equal(t, "_s.inc", Policy{SyncField: "_s", SyncIncSuffix: ".inc"}.SyncIncField())
}
