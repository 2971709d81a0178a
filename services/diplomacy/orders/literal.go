// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrNotLiteralList is returned by ParseLiteralList for any input outside the
// accepted grammar.
var ErrNotLiteralList = errors.New("not a literal list")

// ParseLiteralList parses a bracketed list of scalar literals.
//
// # Description
//
// Accepted elements are single- or double-quoted strings (backslash escapes
// \\ \' \" \n \t \r), numbers (decimal, optional sign, fraction, exponent) and
// the booleans True, False, true and false. A trailing comma is allowed.
// Nothing else is accepted: no nesting, no identifiers, no expressions.
//
// # Inputs
//
//	src - text of the form "[ elem, elem, ... ]".
//
// # Outputs
//
//	[]any - string, float64 or bool elements in source order. Never nil on success.
//	error - wraps ErrNotLiteralList with the failing offset.
func ParseLiteralList(src string) ([]any, error) {
	p := &literalParser{src: src}
	p.skipSpace()
	if !p.consume('[') {
		return nil, p.fail("expected '['")
	}
	out := []any{}
	for {
		p.skipSpace()
		if p.consume(']') {
			break
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			break
		}
		return nil, p.fail("expected ',' or ']'")
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("trailing input")
	}
	return out, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) fail(msg string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrNotLiteralList, msg, p.pos)
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *literalParser) consume(b byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) value() (any, error) {
	if p.pos >= len(p.src) {
		return nil, p.fail("unexpected end of input")
	}
	c := p.src[p.pos]
	switch {
	case c == '"' || c == '\'':
		return p.str(c)
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.boolean()
	}
}

func (p *literalParser) str(quote byte) (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.fail("dangling escape")
			}
			esc := p.src[p.pos+1]
			switch esc {
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", p.fail("unsupported escape")
			}
			p.pos += 2
		case '\n':
			return "", p.fail("newline in string")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("unterminated string")
}

func (p *literalParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		p.pos = start
		return 0, p.fail("malformed number")
	}
	return f, nil
}

func (p *literalParser) boolean() (bool, error) {
	for _, kw := range []struct {
		text string
		val  bool
	}{
		{"True", true}, {"true", true}, {"False", false}, {"false", false},
	} {
		if !strings.HasPrefix(p.src[p.pos:], kw.text) {
			continue
		}
		end := p.pos + len(kw.text)
		if end < len(p.src) && isIdentByte(p.src[end]) {
			break
		}
		p.pos = end
		return kw.val, nil
	}
	return false, p.fail("unsupported literal")
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
