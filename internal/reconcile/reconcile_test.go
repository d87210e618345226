package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/testutil"
)

func fourFields() *document.Document {
	return document.New(
		document.F("a", 1),
		document.F("b", 2),
		document.F("c", 3),
		document.F("d", 4),
	)
}

func seeded() *testutil.MemoryDestination {
	d := testutil.NewMemoryDestination()
	d.Put("app", "events", "x", map[string]any{"a": float64(1), "b": float64(2), "c": float64(3)})
	return d
}

func TestReconcile_SimulationCountsFieldCountChange(t *testing.T) {
	d := seeded()
	r := New(d, true)

	out, err := r.Reconcile(context.Background(), "app", "events", "x", fourFields())
	require.NoError(t, err)
	assert.Equal(t, Updated, out)
	assert.Equal(t, 1, r.Count("app", "events"))
	assert.Equal(t, "BEHIND BY 1 DOCS", r.Status("app", "events"))
	assert.Equal(t, 0, d.Writes(), "simulation never writes")
}

func TestReconcile_SimulationSameFieldCount(t *testing.T) {
	r := New(seeded(), true)
	doc := document.New(document.F("a", 9), document.F("b", 9), document.F("c", 9))

	out, err := r.Reconcile(context.Background(), "app", "events", "x", doc)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out, "the heuristic only looks at field counts")
	assert.Equal(t, "UP TO DATE", r.Status("app", "events"))
	assert.Equal(t, map[string]int{"app.events": 0}, r.counters)
}

func TestReconcile_ExecutionUpdatesAndCountsChanges(t *testing.T) {
	d := seeded()
	r := New(d, false)
	ctx := context.Background()

	out, err := r.Reconcile(ctx, "app", "events", "x", fourFields())
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	out, err = r.Reconcile(ctx, "app", "events", "x", fourFields())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out, "second merge is a no-op")

	assert.Equal(t, 1, r.Count("app", "events"))
	assert.Equal(t, "1 DOCS UPDATED", r.Status("app", "events"))

	got, err := d.Get(ctx, "app", "events", "x")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestReconcile_MissingDocumentIsCreated(t *testing.T) {
	ctx := context.Background()

	sim := testutil.NewMemoryDestination()
	r := New(sim, true)
	out, err := r.Reconcile(ctx, "app", "events", "new", fourFields())
	require.NoError(t, err)
	assert.Equal(t, Created, out)
	assert.Equal(t, 1, r.Count("app", "events"))
	assert.Empty(t, sim.Docs("app", "events"))

	live := testutil.NewMemoryDestination()
	r = New(live, false)
	out, err = r.Reconcile(ctx, "app", "events", "new", fourFields())
	require.NoError(t, err)
	assert.Equal(t, Created, out)
	assert.Len(t, live.Docs("app", "events"), 1)
	assert.Equal(t, "1 DOCS UPDATED", r.Status("app", "events"))
}

func TestReconcile_CountersAreKeyedPerTarget(t *testing.T) {
	ctx := context.Background()
	r := New(testutil.NewMemoryDestination(), true)

	_, _ = r.Reconcile(ctx, "app", "a", "1", fourFields())
	_, _ = r.Reconcile(ctx, "app", "a", "2", fourFields())
	_, _ = r.Reconcile(ctx, "app", "b", "1", fourFields())

	assert.Equal(t, map[string]int{"app.a": 2, "app.b": 1}, r.counters)
	assert.Equal(t, 0, r.Count("other", "x"))
}

type failingStore struct {
	*testutil.MemoryDestination
}

func (*failingStore) Get(context.Context, string, string, string) (map[string]any, error) {
	return nil, &dest.TransportError{Op: "get", Status: 503}
}

func TestReconcile_TransportErrorPropagates(t *testing.T) {
	r := New(&failingStore{MemoryDestination: testutil.NewMemoryDestination()}, false)
	_, err := r.Reconcile(context.Background(), "app", "events", "x", fourFields())
	require.Error(t, err)

	var te *dest.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Empty(t, r.counters)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
