package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "trims and drops blanks", input: []string{"  a ", "", "   "}, expected: []string{"a"}},
		{
			name:     "keeps first-seen order",
			input:    []string{"urn:uuid:2", "urn:uuid:1", " urn:uuid:2"},
			expected: []string{"urn:uuid:2", "urn:uuid:1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList("a:9092, b:9092,,a:9092"))
}
