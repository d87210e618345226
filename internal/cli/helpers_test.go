package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mongo2elastic/internal/config"
	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/engine"
	"github.com/roach88/mongo2elastic/internal/testutil"
)

var testEpoch = time.Date(2018, 1, 2, 18, 43, 12, 0, time.UTC)

// clearEnv keeps M2E_* variables of the host from leaking into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"M2E_MONGO_URI", "M2E_ES_URL", "M2E_ES_USER", "M2E_ES_PASSWORD", "M2E_ES_REFRESH"} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "m2e.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func oid(sec int) bson.ObjectID {
	return bson.NewObjectIDFromTimestamp(testEpoch.Add(time.Duration(sec) * time.Second))
}

func doc(sec int, fields ...document.Field) *document.Document {
	d := document.New(document.F("_id", oid(sec)))
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

func memoryConnector(src *testutil.MemorySource, dst *testutil.MemoryDestination) Connector {
	return func(context.Context, *config.Config) (*Endpoints, error) {
		return &Endpoints{Source: src, Dest: dst}, nil
	}
}

// failingConnector fails the test if a command connects.
func failingConnector(t *testing.T) Connector {
	return func(context.Context, *config.Config) (*Endpoints, error) {
		t.Fatal("command connected although the configuration is invalid")
		return nil, nil
	}
}

type modeHarness struct {
	src *testutil.MemorySource
	dst *testutil.MemoryDestination
	out *bytes.Buffer
	err *bytes.Buffer
}

func newModeHarness() *modeHarness {
	return &modeHarness{
		src: testutil.NewMemorySource(),
		dst: testutil.NewMemoryDestination(),
		out: &bytes.Buffer{},
		err: &bytes.Buffer{},
	}
}

func (h *modeHarness) command(format string, mode engine.Mode, runIDs ...string) *cobra.Command {
	if len(runIDs) == 0 {
		runIDs = []string{"run-1"}
	}
	cmd := newModeCommand(&ModeOptions{
		RootOptions: &RootOptions{Format: format},
		Mode:        mode,
		Connect:     memoryConnector(h.src, h.dst),
		RunIDs:      engine.NewFixedGenerator(runIDs...),
		Now:         testutil.NewStepClock(testEpoch, time.Second).Now,
	})
	cmd.SetOut(h.out)
	cmd.SetErr(h.err)
	return cmd
}
