package moonraker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestExtractMacroParameters(t *testing.T) {
	tests := []struct {
		name     string
		gcode    string
		expected MacroParams
	}{
		{
			name:     "no default",
			gcode:    "test params.FOO bar",
			expected: MacroParams{"FOO": nil},
		},
		{
			name:     "bare numeric default",
			gcode:    "test params.FOO|default(0) bar",
			expected: MacroParams{"FOO": strPtr("0")},
		},
		{
			name:     "double quoted default",
			gcode:    `test params.FOO|default("test") bar`,
			expected: MacroParams{"FOO": strPtr("test")},
		},
		{
			name:     "single quoted default",
			gcode:    "test params.FOO|default('test') bar",
			expected: MacroParams{"FOO": strPtr("test")},
		},
		{
			name:     "unterminated quote",
			gcode:    `test params.FOO|default('test") bar`,
			expected: MacroParams{"FOO": nil},
		},
		{
			name:     "escaped matching quote",
			gcode:    `test params.FOO|default('the\'start') bar`,
			expected: MacroParams{"FOO": strPtr("the'start")},
		},
		{
			name:     "backslash without quote stays literal",
			gcode:    `test params.FOO|default('the\start') bar`,
			expected: MacroParams{"FOO": strPtr(`the\start`)},
		},
		{
			name:     "mixed parameters",
			gcode:    "test params.FOO|lower bar params.FNORD|default(0)",
			expected: MacroParams{"FOO": nil, "FNORD": strPtr("0")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMacroParameters(tt.gcode))
		})
	}
}

func TestExtractMacroParameters_CaseInsensitiveReference(t *testing.T) {
	result := ExtractMacroParameters("SET_SPEED VALUE={PARAMS.SPEED|default(100)}")
	assert.Equal(t, MacroParams{"SPEED": strPtr("100")}, result)
}

func TestExtractMacroParameters_NegativeDefault(t *testing.T) {
	result := ExtractMacroParameters("MOVE Z={params.Z|default(-0.2)}")
	assert.Equal(t, MacroParams{"Z": strPtr("-0.2")}, result)
}

func TestExtractMacroParameters_SpacedDefault(t *testing.T) {
	result := ExtractMacroParameters("X={params.X|default( 5)}")
	assert.Equal(t, MacroParams{"X": strPtr("5")}, result)
}

func TestExtractMacroParameters_NoParameters(t *testing.T) {
	assert.Empty(t, ExtractMacroParameters("G28\nG1 Z10"))
}
