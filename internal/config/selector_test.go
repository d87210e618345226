package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongo2elastic/internal/syncerr"
	"github.com/roach88/mongo2elastic/internal/testutil"
	"github.com/roach88/mongo2elastic/internal/transform"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		line    string
		want    Selector
		wantErr bool
	}{
		{line: "app:+a b", want: Selector{DB: "app", Include: true, Names: []string{"a", "b"}}},
		{line: " app : -tmp ", want: Selector{DB: "app", Names: []string{"tmp"}}},
		{line: "app:-", want: Selector{DB: "app", Names: []string{}}},
		{line: "app", wantErr: true},
		{line: ":+a", wantErr: true},
		{line: "app:", wantErr: true},
		{line: "app:*a", wantErr: true},
		{line: "app:+", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseSelector(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, syncerr.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newLister() *testutil.MemorySource {
	src := testutil.NewMemorySource()
	for _, c := range []string{"users", "events", "tmp"} {
		src.AddCollection("app", c)
	}
	return src
}

func TestSelector_Expand(t *testing.T) {
	ctx := context.Background()
	src := newLister()

	include, err := ParseSelector("app:+tmp users")
	require.NoError(t, err)
	names, err := include.Expand(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp", "users"}, names)

	exclude, err := ParseSelector("app:-tmp nonexistent")
	require.NoError(t, err)
	names, err = exclude.Expand(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "users"}, names)
}

func TestSelector_ExpandMissing(t *testing.T) {
	ctx := context.Background()
	src := newLister()

	sel, err := ParseSelector("other:-x")
	require.NoError(t, err)
	_, err = sel.Expand(ctx, src)
	require.Error(t, err)
	assert.True(t, syncerr.IsMissingSource(err))

	sel, err = ParseSelector("app:+users ghosts")
	require.NoError(t, err)
	_, err = sel.Expand(ctx, src)
	require.Error(t, err)
	assert.True(t, syncerr.IsMissingSource(err))
	assert.Contains(t, err.Error(), "app.ghosts")
}

func TestConfig_ResolveKeepsExplicitSettings(t *testing.T) {
	sel, err := ParseSelector("app:-tmp")
	require.NoError(t, err)
	cfg := &Config{
		Collections: []transform.Collection{{DB: "app", Name: "users", TimestampField: "created"}},
		Selectors:   []Selector{sel},
	}

	cols, err := cfg.Resolve(context.Background(), newLister())
	require.NoError(t, err)

	require.Len(t, cols, 2)
	assert.Equal(t, "app.users", cols[0].FullName())
	assert.Equal(t, "created", cols[0].TimestampField)
	assert.Equal(t, "app.events", cols[1].FullName())
	assert.Empty(t, cols[1].TimestampField)
}
