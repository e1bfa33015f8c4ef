package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersonIdentity_MentionedIn(t *testing.T) {
	p := PersonIdentity{Name: "Ana Souza", Aliases: []string{"Ana", "", "Café"}}

	tests := []struct {
		text     string
		expected bool
	}{
		{"ana souza at the beach", true},
		{"Beach with ANA", true},
		{"banana split", false},
		{"analysis of the meeting", false},
		{"coffee at café!", true},
		{"cafés nearby", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.MentionedIn(tt.text))
		})
	}
}

func TestPersonIdentity_Names(t *testing.T) {
	p := PersonIdentity{Name: "Bob", Aliases: []string{"  ", "Robert"}}
	assert.Equal(t, []string{"Bob", "Robert"}, p.Names())
}
