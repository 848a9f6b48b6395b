package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// installed fakes exec.LookPath for a mutable set of binaries.
type installed map[string]bool

func (in installed) lookPath(file string) (string, error) {
	if in[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found")
}

func newTestRotation(t *testing.T, in installed, kinds ...Kind) *Rotation {
	t.Helper()
	var ps []Provider
	for _, k := range kinds {
		p, err := New(k, WithLookPath(in.lookPath))
		require.NoError(t, err)
		ps = append(ps, p)
	}
	return NewRotation(ps)
}

func TestRotation_FullCycleReturnsToStart(t *testing.T) {
	in := installed{"agent": true, "claude": true, "gemini": true, "codex": true}
	r := newTestRotation(t, in, KindCursor, KindClaude, KindGemini, KindCodex)

	start, err := r.Current()
	require.NoError(t, err)

	var seen []string
	for i := 0; i < r.Len(); i++ {
		p, err := r.Rotate()
		require.NoError(t, err)
		seen = append(seen, p.DisplayName())
	}

	assert.Equal(t, []string{"claude", "gemini", "codex", "cursor"}, seen)
	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, start, cur)
}

func TestRotation_SingleAvailableIsNoOp(t *testing.T) {
	in := installed{"claude": true}
	r := newTestRotation(t, in, KindCursor, KindClaude, KindGemini)

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, KindClaude, cur.Kind())

	for i := 0; i < 5; i++ {
		p, err := r.Rotate()
		require.NoError(t, err)
		assert.Equal(t, cur, p)
	}
}

func TestRotation_SingleConfigured(t *testing.T) {
	r := newTestRotation(t, installed{"codex": true}, KindCodex)

	p, err := r.Rotate()
	require.NoError(t, err)
	assert.Equal(t, KindCodex, p.Kind())
	assert.Equal(t, 0, r.Index())
}

func TestRotation_SkipsUnavailable(t *testing.T) {
	in := installed{"agent": true, "gemini": true}
	r := newTestRotation(t, in, KindCursor, KindClaude, KindGemini, KindCodex)

	p, err := r.Rotate()
	require.NoError(t, err)
	assert.Equal(t, KindGemini, p.Kind())
	assert.Equal(t, 2, r.Index())

	p, err = r.Rotate()
	require.NoError(t, err)
	assert.Equal(t, KindCursor, p.Kind())
}

func TestRotation_NoneAvailable(t *testing.T) {
	in := installed{}
	r := newTestRotation(t, in, KindCursor, KindClaude)

	_, err := r.Current()
	assert.ErrorIs(t, err, ErrNoProviderAvailable)

	_, err = r.Rotate()
	assert.ErrorIs(t, err, ErrNoProviderAvailable)

	empty := NewRotation(nil)
	_, err = empty.Current()
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	_, err = empty.Rotate()
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestRotation_CurrentAdvancesWhenUninstalled(t *testing.T) {
	in := installed{"agent": true, "claude": true}
	r := newTestRotation(t, in, KindCursor, KindClaude)

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, KindCursor, cur.Kind())

	in["agent"] = false
	cur, err = r.Current()
	require.NoError(t, err)
	assert.Equal(t, KindClaude, cur.Kind())
	assert.Equal(t, 1, r.Index())
	assert.Equal(t, 1, r.AvailableCount())
}
