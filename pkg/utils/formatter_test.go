package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		999:           "999 B",
		1000:          "1.0 kB",
		48_213:        "48.2 kB",
		3_400_000:     "3.4 MB",
		7_000_000_000: "7.0 GB",
	}
	for in, want := range cases {
		assert.Equal(t, want, ByteCountSI(in), "bytes=%d", in)
	}
}
