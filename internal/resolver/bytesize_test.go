package resolver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanReadableByteCount(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1.0 kiB"},
		{1536, "1.5 kiB"},
		{2048, "2.0 kiB"},
		{1048575, "1024.0 kiB"},
		{1048576, "1.0 MiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{1 << 30, "1.0 GiB"},
		{1 << 40, "1.0 TiB"},
		{1 << 50, "1.0 PiB"},
		{1 << 60, "1.0 EiB"},
		{math.MaxInt64, "8.0 EiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanReadableByteCount(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestHumanReadableByteCountBelowKibiIsExact(t *testing.T) {
	for n := int64(0); n < 1024; n += 97 {
		got := HumanReadableByteCount(n)
		assert.Regexp(t, `^\d+ B$`, got)
	}
}
