package position

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pos  Position
		want string
	}{
		{"plain", Position{File: 1, Line: 4, Column: 6}, "1:4:6"},
		{"indirect", Position{File: 1, Line: 4, Column: 13, Indirect: true}, "*1:4:13"},
		{"with length", Position{File: 2, Line: 10, Column: 1, Length: 3}, "2:10:1:3"},
		{"indirect with length", Position{File: 1, Line: 1, Column: 6, Length: 6, Indirect: true}, "*1:1:6:6"},
		{"file zero", Position{File: 0, Line: 1, Column: 1}, "0:1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Encode(tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, p := range []Position{
		{File: -1, Line: 1, Column: 1},
		{File: 1, Line: 0, Column: 1},
		{File: 1, Line: 1, Column: 0},
		{File: 1, Line: 1, Column: 1, Length: -2},
	} {
		_, err := Encode(p)
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "expected FormatError for %+v", p)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	p, err := Decode("*1:7:3")
	require.NoError(t, err)
	assert.Equal(t, Position{File: 1, Line: 7, Column: 3, Indirect: true}, p)

	p, err = Decode("3:12:5:9")
	require.NoError(t, err)
	assert.Equal(t, Position{File: 3, Line: 12, Column: 5, Length: 9}, p)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"*",
		"1:2",
		"1:2:3:4:5",
		"a:2:3",
		"1::3",
		"1:0:3",
		"1:2:0",
		"01:2:3",
		"+1:2:3",
		"1:2:3:0",
		"**1:2:3",
		" 1:2:3",
		"1:2:99999999999999999999999",
	} {
		_, err := Decode(in)
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "expected FormatError for %q, got %v", in, err)
		assert.Equal(t, in, fe.Input)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"1:1:6", "1:4:6", "*1:1:6", "*1:4:13", "0:1:1", "12:345:67:8", "*9:9:9:1",
	} {
		p, err := Decode(s)
		require.NoError(t, err, s)
		got, err := Encode(p)
		require.NoError(t, err, s)
		assert.Equal(t, s, got)
	}
}

func TestFormatError_Message(t *testing.T) {
	t.Parallel()

	_, err := Decode("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
	assert.Contains(t, err.Error(), "expected 3 or 4 fields")
}
