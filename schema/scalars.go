package schema

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"unicode"
)

// ParseInt parses a decimal or 0x-prefixed hexadecimal integer literal.
func ParseInt(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("expected integer, got an empty value")
	}
	sign := int64(1)
	body := text
	switch body[0] {
	case '-':
		sign = -1
		body = body[1:]
	case '+':
		body = body[1:]
	}
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		base = 16
		body = body[2:]
	}
	if body == "" || body[0] == '+' || body[0] == '-' {
		if base == 16 {
			return 0, fmt.Errorf("malformed hex literal %s", text)
		}
		return 0, fmt.Errorf("expected integer, but cannot parse %s as an integer", text)
	}
	value, err := strconv.ParseInt(body, base, 64)
	if err != nil {
		if base == 16 {
			return 0, fmt.Errorf("malformed hex literal %s", text)
		}
		return 0, fmt.Errorf("expected integer, but cannot parse %s as an integer", text)
	}
	return sign * value, nil
}

// IPv4 validates a dotted-quad IPv4 literal.
func IPv4(raw string) (netip.Addr, error) {
	text := strings.TrimSpace(raw)
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%q is not a valid IPv4 address", text)
	}
	return addr, nil
}

// IntRange checks min <= value <= max.
func IntRange(value, min, max int64) error {
	if value < min {
		return fmt.Errorf("value must be at least %d", min)
	}
	if value > max {
		return fmt.Errorf("value must be at most %d", max)
	}
	return nil
}

// HexUint8 parses an 8-bit unsigned value given as decimal or hex literal.
func HexUint8(raw string) (uint8, error) {
	value, err := ParseInt(raw)
	if err != nil {
		return 0, err
	}
	if err := IntRange(value, 0, 0xFF); err != nil {
		return 0, err
	}
	return uint8(value), nil
}

// reserved identifiers that would clash with the generated program.
var reservedIDs = map[string]struct{}{
	"App": {}, "auto": {}, "bool": {}, "break": {}, "case": {}, "char": {}, "class": {},
	"const": {}, "continue": {}, "default": {}, "delete": {}, "do": {}, "double": {},
	"else": {}, "enum": {}, "false": {}, "float": {}, "for": {}, "if": {}, "int": {},
	"long": {}, "namespace": {}, "new": {}, "nullptr": {}, "return": {}, "setup": {},
	"loop": {}, "short": {}, "static": {}, "struct": {}, "switch": {}, "this": {},
	"true": {}, "using": {}, "void": {}, "while": {},
}

// Identifier validates an instance ID. IDs end up as variable names in the
// generated program.
func Identifier(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("ID must not be empty")
	}
	for idx, r := range trimmed {
		if idx == 0 && unicode.IsDigit(r) {
			return fmt.Errorf("ID %q must not start with a digit", trimmed)
		}
		if !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')) {
			return fmt.Errorf("ID %q contains invalid character %q", trimmed, r)
		}
	}
	if _, ok := reservedIDs[trimmed]; ok {
		return fmt.Errorf("ID %q is a reserved word", trimmed)
	}
	return nil
}
