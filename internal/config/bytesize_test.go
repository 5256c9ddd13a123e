package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"1024", 1024},
		{"1KB", 1024},
		{"1KiB", 1024},
		{"10MB", 10 * 1024 * 1024},
		{"1.5 GB", int64(1.5 * float64(1<<30))},
		{"2tb", 2 << 40},
		{"512b", 512},
		{" 5 mb ", 5 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Bytes())
		})
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "-5MB", "MB", "1QB2"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseByteSize(input)
			assert.Error(t, err)
		})
	}
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1KB"},
		{10 * 1024 * 1024, "10MB"},
		{ByteSize(1.5 * float64(1<<30)), "1.5GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.size.String())
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("10MB")))
	assert.Equal(t, int64(10<<20), b.Bytes())
}

func TestByteSize_JSONRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalJSON([]byte(`"5MB"`)))
	assert.Equal(t, int64(5<<20), b.Bytes())

	require.NoError(t, b.UnmarshalJSON([]byte(`1048576`)))
	assert.Equal(t, int64(1<<20), b.Bytes())

	data, err := ByteSize(1 << 20).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1MB"`, string(data))
}
