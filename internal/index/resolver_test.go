package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_FirstSeenWins(t *testing.T) {
	t.Parallel()
	r := NewResolver()

	for i, usr := range []string{"c:@F@a#", "c:@F@b#", "c:@F@c#"} {
		id, created, err := r.Resolve(Function, usr)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, i, id)
	}

	id, created, err := r.Resolve(Function, "c:@F@b#")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, id)
	assert.Equal(t, 3, r.Count(Function))
}

func TestResolver_PerKindIDSpaces(t *testing.T) {
	t.Parallel()
	r := NewResolver()

	fid, _, err := r.Resolve(Function, "c:@F@f#")
	require.NoError(t, err)
	tid, _, err := r.Resolve(Type, "c:@S@T")
	require.NoError(t, err)
	vid, _, err := r.Resolve(Variable, "c:@v")
	require.NoError(t, err)

	assert.Zero(t, fid)
	assert.Zero(t, tid)
	assert.Zero(t, vid)
	assert.Equal(t, 1, r.Count(Function))
	assert.Equal(t, 1, r.Count(Type))
	assert.Equal(t, 1, r.Count(Variable))
}

func TestResolver_IdentityConflict(t *testing.T) {
	t.Parallel()
	r := NewResolver()

	_, _, err := r.Resolve(Type, "c:@S@Thing")
	require.NoError(t, err)

	_, _, err = r.Resolve(Variable, "c:@S@Thing")
	var conflict *IdentityConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "c:@S@Thing", conflict.USR)
	assert.Equal(t, Type, conflict.Existing)
	assert.Equal(t, Variable, conflict.Got)

	// The failed resolve must not allocate.
	assert.Equal(t, 0, r.Count(Variable))
	require.Error(t, r.Check(Function, "c:@S@Thing"))
	require.NoError(t, r.Check(Type, "c:@S@Thing"))
}

func TestResolver_Lookup(t *testing.T) {
	t.Parallel()
	r := NewResolver()

	_, ok := r.Lookup(Function, "c:@F@a#")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count(Function), "lookup must not allocate")

	_, _, err := r.Resolve(Function, "c:@F@a#")
	require.NoError(t, err)
	id, ok := r.Lookup(Function, "c:@F@a#")
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}
