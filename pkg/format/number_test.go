package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.5e12, "1.50e+12"},
		{2_500_000_000, "2.50B"},
		{1_234_567, "1.23M"},
		{1500, "1.50K"},
		{999.9994, "999.999"},
		{42, "42"},
		{0.1234567, "0.123"},
		{0, "0"},
		{3e-9, "3.00e-9"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Number(tt.in), "Number(%v)", tt.in)
	}
}
