/*
2019 © Postgres.ai
*/

package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCutText(t *testing.T) {
	cut, ok := CutText("SELECT * FROM solicitacoes", 10, "...")
	assert.True(t, ok)
	assert.Equal(t, "SELECT ...", cut)

	cut, ok = CutText("SELECT 1", 10, "...")
	assert.False(t, ok)
	assert.Equal(t, "SELECT 1", cut)
}

func TestMaskEmail(t *testing.T) {
	testCases := []struct {
		email    string
		expected string
	}{
		{email: "joao.silva@gmail.com", expected: "jo***@gmail.com"},
		{email: "ab@x.com", expected: "a***@x.com"},
		{email: "a@x.com", expected: "a***@x.com"},
		{email: "josé@x.com", expected: "jo***@x.com"},
		{email: "broken", expected: "***"},
		{email: "@x.com", expected: "***"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, MaskEmail(tc.email), tc.email)
	}
}
