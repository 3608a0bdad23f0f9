package moonraker

import (
	"regexp"
	"strings"
)

// macroParamPattern finds params.NAME references inside macro gcode.
var macroParamPattern = regexp.MustCompile(`(?i)params\.(?P<name>\w+)`)

// ExtractMacroParameters scans macro gcode for params.NAME references and
// their Jinja default(...) values. The returned map carries nil for
// parameters without a default. When a parameter appears multiple times the
// last occurrence wins.
func ExtractMacroParameters(gcode string) MacroParams {
	result := make(MacroParams)

	for _, match := range macroParamPattern.FindAllStringSubmatchIndex(gcode, -1) {
		name := gcode[match[2]:match[3]]
		result[name] = parseDefault(gcode[match[1]:])
	}

	return result
}

// parseDefault extracts the default value following a params.NAME reference.
// It recognizes `|default(` immediately after the reference, then either a
// quoted literal (with backslash-escaped quotes of the matching kind) or a
// bare numeric-looking token running up to the next comma or closing paren.
// Go's regexp has no backreferences, so the quote matching is done by hand.
func parseDefault(rest string) *string {
	const defaultPrefix = "|default("
	if !strings.HasPrefix(rest, defaultPrefix) {
		return nil
	}
	rest = strings.TrimLeft(rest[len(defaultPrefix):], " \t\n\r\f\v")
	if rest == "" {
		return nil
	}

	if rest[0] == '\'' || rest[0] == '"' {
		return parseQuotedDefault(rest, rest[0])
	}
	return parseBareDefault(rest)
}

// parseQuotedDefault scans a quoted literal. Only backslash-escaped quotes of
// the matching kind are unescaped; any other backslash stays literal. An
// unterminated literal yields no default.
func parseQuotedDefault(rest string, quote byte) *string {
	var value strings.Builder
	for i := 1; i < len(rest); {
		switch {
		case rest[i] == '\\' && i+1 < len(rest) && rest[i+1] == quote:
			value.WriteByte(quote)
			i += 2
		case rest[i] == quote:
			s := value.String()
			return &s
		case rest[i] == '\n':
			// literals don't span lines
			return nil
		default:
			value.WriteByte(rest[i])
			i++
		}
	}
	return nil
}

// parseBareDefault scans an unquoted token: an optional minus sign, a digit,
// then anything up to a comma or closing paren.
func parseBareDefault(rest string) *string {
	i := 0
	if rest[i] == '-' {
		i++
	}
	if i >= len(rest) || rest[i] < '0' || rest[i] > '9' {
		return nil
	}
	end := i + 1
	for end < len(rest) && rest[end] != ',' && rest[end] != ')' {
		end++
	}
	s := rest[:end]
	return &s
}
