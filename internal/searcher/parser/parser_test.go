package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantTerm  string
		wantEmpty bool
	}{
		{"plain", "upper", "upper", false},
		{"mixed case", "UpPer", "upper", false},
		{"surrounding whitespace", "  \tsplit\n", "split", false},
		{"inner whitespace kept", "  To  Upper ", "to  upper", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\r\n ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.wantTerm, plan.Term)
			assert.Equal(t, tt.query, plan.RawQuery)
			assert.Equal(t, tt.wantEmpty, plan.Empty())
		})
	}
}

func TestLengthCountsRunes(t *testing.T) {
	assert.Equal(t, 5, Parse("ÄPFEL").Length())
}
