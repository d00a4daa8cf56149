package bencode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalScalars(t *testing.T) {
	table := []struct {
		in   interface{}
		want string
	}{
		{"spam", "4:spam"},
		{42, "i42e"},
		{uint32(7), "i7e"},
		{[]byte("hi"), "2:hi"},
	}

	for _, tt := range table {
		got, err := Marshal(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, string(got))
	}
}

func TestMarshalDictSortsKeys(t *testing.T) {
	d := Dict{"b": 2, "a": 1}
	got, err := Marshal(d)
	require.NoError(t, err)
	require.Equal(t, "d1:ai1e1:bi2ee", string(got))
}

func TestMarshalList(t *testing.T) {
	l := List{1, "two", 3}
	got, err := Marshal(l)
	require.NoError(t, err)
	require.Equal(t, "li1e3:twoi3ee", string(got))
}

func TestMarshalUnsupportedType(t *testing.T) {
	_, err := Marshal(3.14)
	require.Error(t, err)
}
