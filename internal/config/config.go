// Package config loads replication settings from CUE or YAML files and
// the environment, and turns them into the engine's policy and collections.
//
// File layout (YAML shown; CUE uses the same field names):
//
//	elasticsearch:
//	  user: elastic
//	  password: changeme
//	  uri: localhost
//	  port: "9200"
//	mongo:
//	  uri: mongodb://localhost:27017
//	filter:
//	  common_timestamp: "@timestamp"
//	  common_field_format: "{field}_{coll}__{type}"
//	  sync_field: _sync
//	index:
//	  - db: app
//	    coll: events
//	    timestamp: created
//	    tsformat: "%Y-%m-%d %H:%M:%S"
//	    script: status_text
//	    script_args: {field: status}
//	    scripts:
//	      - {name: reformat_date, args: {field: created, format: "%Y-%m"}}
//	select:
//	  - "metrics:-tmp scratch"
package config

import (
	"fmt"

	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/source"
	"github.com/roach88/mongo2elastic/internal/syncerr"
	"github.com/roach88/mongo2elastic/internal/transform"
)

// File is the on-disk configuration.
type File struct {
	Elasticsearch ElasticsearchSection `json:"elasticsearch" yaml:"elasticsearch"`
	Mongo         MongoSection         `json:"mongo" yaml:"mongo"`
	Filter        FilterSection        `json:"filter" yaml:"filter"`
	Index         []IndexSection       `json:"index" yaml:"index"`
	Select        []string             `json:"select" yaml:"select"`
}

// ElasticsearchSection holds destination connection settings.
type ElasticsearchSection struct {
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	URI      string `json:"uri" yaml:"uri"`
	Port     string `json:"port" yaml:"port"`
	Refresh  string `json:"refresh" yaml:"refresh"`
}

// MongoSection holds source connection settings.
type MongoSection struct {
	URI string `json:"uri" yaml:"uri"`
}

// FilterSection is the global filter policy.
type FilterSection struct {
	CommonTimestamp    string `json:"common_timestamp" yaml:"common_timestamp"`
	CommonFieldFormat  string `json:"common_field_format" yaml:"common_field_format"`
	SyncField          string `json:"sync_field" yaml:"sync_field"`
	SyncFieldIncSuffix string `json:"sync_field_inc_suffix" yaml:"sync_field_inc_suffix"`
	CommonIndexFormat  string `json:"common_index_format" yaml:"common_index_format"`
	CommonTypeFormat   string `json:"common_type_format" yaml:"common_type_format"`
}

// IndexSection configures one source collection.
type IndexSection struct {
	DB         string            `json:"db" yaml:"db"`
	Coll       string            `json:"coll" yaml:"coll"`
	Timestamp  string            `json:"timestamp" yaml:"timestamp"`
	TSFormat   string            `json:"tsformat" yaml:"tsformat"`
	Index      string            `json:"index" yaml:"index"`
	Type       string            `json:"type" yaml:"type"`
	Script     string            `json:"script" yaml:"script"`
	ScriptArgs map[string]string `json:"script_args" yaml:"script_args"`

	// Scripts run after Script, in order.
	Scripts []ScriptSection `json:"scripts" yaml:"scripts"`
}

// ScriptSection names one hook and its arguments.
type ScriptSection struct {
	Name string            `json:"name" yaml:"name"`
	Args map[string]string `json:"args" yaml:"args"`
}

// Config is the validated configuration.
type Config struct {
	MongoURI    string
	Elastic     dest.ElasticConfig
	Policy      transform.Policy
	Collections []transform.Collection
	Selectors   []Selector
}

// Build validates f and resolves templates and hooks.
// Every problem is reported as a CONFIGURATION error.
func Build(f *File) (*Config, error) {
	policy, err := buildPolicy(f.Filter)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MongoURI: f.Mongo.URI,
		Elastic: dest.ElasticConfig{
			User:     f.Elasticsearch.User,
			Password: f.Elasticsearch.Password,
			Host:     f.Elasticsearch.URI,
			Port:     f.Elasticsearch.Port,
			Refresh:  f.Elasticsearch.Refresh,
		},
		Policy: policy,
	}
	if cfg.MongoURI == "" {
		cfg.MongoURI = source.DefaultMongoURI
	}

	for i, sec := range f.Index {
		c, err := buildCollection(sec)
		if err != nil {
			return nil, fmt.Errorf("index[%d]: %w", i, err)
		}
		cfg.Collections = append(cfg.Collections, c)
	}

	for _, line := range f.Select {
		sel, err := ParseSelector(line)
		if err != nil {
			return nil, err
		}
		cfg.Selectors = append(cfg.Selectors, sel)
	}

	if len(cfg.Collections) == 0 && len(cfg.Selectors) == 0 {
		return nil, syncerr.Configuration("no collections configured (need index or select entries)")
	}
	return cfg, nil
}

func buildPolicy(f FilterSection) (transform.Policy, error) {
	p := transform.Policy{
		CommonTimestamp: f.CommonTimestamp,
		SyncField:       f.SyncField,
		SyncIncSuffix:   f.SyncFieldIncSuffix,
	}
	var err error
	if p.FieldFormat, err = template("common_field_format", f.CommonFieldFormat, transform.FieldVars); err != nil {
		return p, err
	}
	if p.IndexFormat, err = template("common_index_format", f.CommonIndexFormat, transform.NameVars); err != nil {
		return p, err
	}
	if p.TypeFormat, err = template("common_type_format", f.CommonTypeFormat, transform.NameVars); err != nil {
		return p, err
	}
	if p.CommonTimestamp != "" && p.CommonTimestamp == p.SyncField {
		return p, syncerr.Configuration("common_timestamp and sync_field must differ (both %q)", p.SyncField)
	}
	return p, nil
}

func template(name, raw string, vars []string) (*transform.Template, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := transform.ParseTemplate(raw, vars)
	if err != nil {
		return nil, &syncerr.Error{
			Code:    syncerr.CodeConfiguration,
			Message: fmt.Sprintf("%s %q", name, raw),
			Err:     err,
		}
	}
	return t, nil
}

func buildCollection(sec IndexSection) (transform.Collection, error) {
	c := transform.Collection{
		DB:              sec.DB,
		Name:            sec.Coll,
		TimestampField:  sec.Timestamp,
		TimestampFormat: sec.TSFormat,
		Index:           sec.Index,
		Type:            sec.Type,
	}
	if c.DB == "" || c.Name == "" {
		return c, syncerr.Configuration("db and coll are required")
	}
	if c.TimestampFormat != "" && c.TimestampField == "" {
		return c, syncerr.Configuration("%s: tsformat requires timestamp", c.FullName())
	}
	if sec.Script == "" && len(sec.ScriptArgs) > 0 {
		return c, syncerr.Configuration("%s: script_args without script", c.FullName())
	}
	scripts := sec.Scripts
	if sec.Script != "" {
		scripts = append([]ScriptSection{{Name: sec.Script, Args: sec.ScriptArgs}}, scripts...)
	}
	hooks := make([]transform.Hook, 0, len(scripts))
	for _, sc := range scripts {
		hook, err := transform.NewHook(sc.Name, sc.Args)
		if err != nil {
			return c, &syncerr.Error{
				Code:       syncerr.CodeConfiguration,
				Message:    fmt.Sprintf("script %q", sc.Name),
				Collection: c.FullName(),
				Err:        err,
			}
		}
		hooks = append(hooks, hook)
	}
	switch len(hooks) {
	case 0:
	case 1:
		c.Hook = hooks[0]
	default:
		c.Hook = transform.Chain(hooks...)
	}
	return c, nil
}
