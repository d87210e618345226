package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mongo2elastic/internal/syncerr"
)

// Env holds settings that override the file. Connection secrets usually
// come from here.
type Env struct {
	MongoURI   string `env:"M2E_MONGO_URI"`
	ESURL      string `env:"M2E_ES_URL"`
	ESUser     string `env:"M2E_ES_USER"`
	ESPassword string `env:"M2E_ES_PASSWORD"`
	ESRefresh  string `env:"M2E_ES_REFRESH"`
}

// LoadEnv reads the M2E_* variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply overrides the connection settings of f with the non-empty values of e.
func (e Env) Apply(f *File) {
	if e.MongoURI != "" {
		f.Mongo.URI = e.MongoURI
	}
	if e.ESURL != "" {
		f.Elasticsearch.URI = e.ESURL
	}
	if e.ESUser != "" {
		f.Elasticsearch.User = e.ESUser
	}
	if e.ESPassword != "" {
		f.Elasticsearch.Password = e.ESPassword
	}
	if e.ESRefresh != "" {
		f.Elasticsearch.Refresh = e.ESRefresh
	}
}

// Load reads path, applies the environment and builds the configuration.
// path may be a .yaml/.yml file, a .cue file or a directory of .cue files.
func Load(path string) (*Config, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	e, err := LoadEnv()
	if err != nil {
		return nil, syncerr.New(syncerr.CodeConfiguration, "%v", err)
	}
	e.Apply(f)
	return Build(f)
}

// ReadFile decodes path without applying the environment or validating.
func ReadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, configErr(path, err)
	}
	if info.IsDir() {
		return readCUE(path, ".")
	}
	switch filepath.Ext(path) {
	case ".cue":
		return readCUE(filepath.Dir(path), filepath.Base(path))
	case ".yaml", ".yml":
		return readYAML(path)
	default:
		return nil, syncerr.Configuration("%s: unsupported config format (want .yaml, .yml or .cue)", path)
	}
}

func readYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErr(path, err)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, configErr(path, err)
	}
	return &f, nil
}

func readCUE(dir, arg string) (*File, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{arg}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, syncerr.Configuration("%s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, configErr(dir, fmt.Errorf("loading CUE files: %w", inst.Err))
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, configErr(dir, fmt.Errorf("building CUE value: %w", err))
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, configErr(dir, err)
	}

	var f File
	if err := value.Decode(&f); err != nil {
		return nil, configErr(dir, fmt.Errorf("decoding CUE value: %w", err))
	}
	return &f, nil
}

func configErr(path string, err error) error {
	return &syncerr.Error{
		Code:    syncerr.CodeConfiguration,
		Message: path,
		Err:     err,
	}
}
