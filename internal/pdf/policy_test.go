package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormulaFont(t *testing.T) {
	p := DefaultFormulaPolicy{}

	tests := []struct {
		font string
		want bool
	}{
		{"CMMI10", true},
		{"CMSY7", true},
		{"CMR10", false}, // roman text face of the same family
		{"ABCDEF+CMMI10", true},
		{"ABCDEF+Times-Roman", false},
		{"MSAM10", true},
		{"FiraMono-Regular", true},
		{"Times-Italic", true},
		{"STIXMath", true},
		{"NotoSans-Regular", false},
		{"Helvetica", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.FormulaFont(tt.font), tt.font)
	}
}

func TestFormulaRune(t *testing.T) {
	p := DefaultFormulaPolicy{}

	assert.True(t, p.FormulaRune('∑'))
	assert.True(t, p.FormulaRune('='))
	assert.True(t, p.FormulaRune('α'), "Greek block")
	assert.True(t, p.FormulaRune('ˆ'), "modifier letter")
	assert.True(t, p.FormulaRune(' '), "space separator category")

	assert.False(t, p.FormulaRune(' '), "plain spaces stay prose")
	assert.False(t, p.FormulaRune('a'))
	assert.False(t, p.FormulaRune('中'))
	assert.False(t, p.FormulaRune('('))
}

func TestIsAnchorRune(t *testing.T) {
	assert.True(t, isAnchorRune('ˆ'))
	assert.True(t, isAnchorRune('́'), "combining acute")
	assert.False(t, isAnchorRune('a'))
	assert.False(t, isAnchorRune('∑'), "math symbols keep their advance")
}
