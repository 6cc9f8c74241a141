package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/deisuggest/internal/textnorm"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already normalized", input: "white house", expected: "white house"},
		{name: "surrounding and inner runs", input: "  White   House ", expected: "white house"},
		{name: "tabs and newlines", input: "White\tHouse\npress", expected: "white house press"},
		{name: "single word", input: "OBAMA", expected: "obama"},
		{name: "non ascii", input: "  Élysée  PALACE", expected: "élysée palace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := textnorm.Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	a, err := textnorm.Normalize("  White   House ")
	require.NoError(t, err)
	b, err := textnorm.Normalize("white house")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The  White House",
		"   leading",
		"trailing   ",
		"MiXeD\t\tCase  words ",
		"ǅemal İstanbul ΣΟΦΊΑ",
		"a",
	}

	for _, input := range inputs {
		once, err := textnorm.Normalize(input)
		require.NoError(t, err, input)
		twice, err := textnorm.Normalize(once)
		require.NoError(t, err, input)
		assert.Equal(t, once, twice, "Normalize not idempotent for %q", input)
		assert.NotContains(t, once, "  ")
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, input := range []string{"", " ", "   ", "\t\n"} {
		_, err := textnorm.Normalize(input)
		assert.ErrorIs(t, err, textnorm.ErrEmptyInput, "input %q", input)
	}
}
