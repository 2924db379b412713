package humanize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10.0 MB"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Bytes(c.in))
	}
}

func TestRate(t *testing.T) {
	require.Equal(t, "0 B/s", Rate(0))
	require.Equal(t, "2.0 MB/s", Rate(2*1024*1024))
}
