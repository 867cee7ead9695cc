package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVolumeML(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"30ml", "30"},
		{"50 ML", "50"},
		{"5cl", "50"},
		{"0.1 L", "100"},
		{"0,5l", "500"},
		{"100", "100"},
		{" 7.5ml ", "7.5"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseVolumeML(tt.spec)
			require.NoError(t, err)
			assert.Truef(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseVolumeML_Invalid(t *testing.T) {
	for _, spec := range []string{"", "ml", "large", "30 oz", "0ml", "-5ml"} {
		_, err := ParseVolumeML(spec)
		assert.ErrorIsf(t, err, ErrInvalidInput, "spec %q", spec)
	}
}
