// metafiliX - watermarking and sanitizing of PDF and image files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package scanner splits PDF content streams into operators and operands.
package scanner

import (
	"bytes"
	"io"
	"math"
	"strconv"

	"github.com/garnajee/metafiliX/internal/pdf"
)

// InlineImage is the operand of the synthetic "EI" operator yielded for
// inline images: the image dictionary (with abbreviated keys) and the raw
// image data.
type InlineImage struct {
	Dict pdf.Dict
	Data []byte
}

// PDF implements the [pdf.Object] interface.
func (x *InlineImage) PDF(w io.Writer) error {
	return x.Dict.PDF(w)
}

// Scanner breaks a content stream into tokens.
//
// Parse errors are ignored as much as possible: malformed tokens are
// dropped and scanning continues with the next token.
type Scanner struct {
	stack []*frame
	args  []pdf.Object

	buf []byte
	pos int
}

type frame struct {
	data   []pdf.Object
	isDict bool
}

// New returns a new scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan returns an iterator over all operators in the content stream, together
// with their operands.
//
// The args slice passed to the yield function is owned by the scanner and is
// only valid until yield returns.  If yield returns an error, scanning stops
// and the error is returned.
func (s *Scanner) Scan(data []byte) func(yield func(op string, args []pdf.Object) error) error {
	return func(yield func(string, []pdf.Object) error) error {
		s.buf = data
		s.pos = 0
		s.stack = s.stack[:0]
		s.args = s.args[:0]

		for {
			obj, ok := s.nextToken()
			if !ok {
				return nil
			}

			switch obj {
			case pdf.Operator("<<"):
				s.stack = append(s.stack, &frame{isDict: true})
				continue
			case pdf.Operator(">>"):
				if len(s.stack) == 0 || !s.stack[len(s.stack)-1].isDict {
					continue
				}
				top := s.stack[len(s.stack)-1]
				s.stack = s.stack[:len(s.stack)-1]
				obj = makeDict(top.data)
			case pdf.Operator("["):
				s.stack = append(s.stack, &frame{})
				continue
			case pdf.Operator("]"):
				if len(s.stack) == 0 || s.stack[len(s.stack)-1].isDict {
					continue
				}
				obj = pdf.Array(s.stack[len(s.stack)-1].data)
				s.stack = s.stack[:len(s.stack)-1]
			}

			if len(s.stack) > 0 {
				top := s.stack[len(s.stack)-1]
				top.data = append(top.data, obj)
				continue
			}

			op, isOp := obj.(pdf.Operator)
			if !isOp {
				s.args = append(s.args, obj)
				continue
			}

			if op == "BI" {
				img, ok := s.readInlineImage()
				s.args = s.args[:0]
				if !ok {
					return nil
				}
				op = "EI"
				s.args = append(s.args, img)
			}

			err := yield(string(op), s.args)
			if err != nil {
				return err
			}
			s.args = s.args[:0]
		}
	}
}

func makeDict(data []pdf.Object) pdf.Dict {
	dict := pdf.Dict{}
	for i := 0; i+1 < len(data); i += 2 {
		key, ok := data[i].(pdf.Name)
		if !ok || data[i+1] == nil {
			continue
		}
		dict[key] = data[i+1]
	}
	return dict
}

// readInlineImage reads the key/value pairs after "BI", the "ID" operator,
// and the image data up to the closing "EI".
func (s *Scanner) readInlineImage() (*InlineImage, bool) {
	var kv []pdf.Object
	for {
		obj, ok := s.nextToken()
		if !ok {
			return nil, false
		}
		if obj == pdf.Operator("ID") {
			break
		}
		switch obj {
		case pdf.Operator("["):
			arr, ok := s.readInlineArray()
			if !ok {
				return nil, false
			}
			obj = arr
		case pdf.Operator("<<"), pdf.Operator(">>"), pdf.Operator("]"):
			continue
		}
		kv = append(kv, obj)
	}

	// A single white-space character follows "ID".
	if s.pos < len(s.buf) && class[s.buf[s.pos]] == space {
		s.pos++
	}

	start := s.pos
	end := -1
	for i := start; i+1 < len(s.buf); i++ {
		if s.buf[i] != 'E' || s.buf[i+1] != 'I' {
			continue
		}
		before := i == start || class[s.buf[i-1]] == space
		after := i+2 == len(s.buf) || class[s.buf[i+2]] != regular
		if before && after {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, false
	}
	// Only the end-of-line marker in front of "EI" is removed.  The data
	// itself is binary and may end in bytes which look like white space.
	data := s.buf[start:end]
	switch {
	case bytes.HasSuffix(data, []byte("\r\n")):
		data = data[:len(data)-2]
	case len(data) > 0 && bytes.IndexByte([]byte(" \t\r\n\f"), data[len(data)-1]) >= 0:
		data = data[:len(data)-1]
	}
	s.pos = end + 2

	return &InlineImage{Dict: makeDict(kv), Data: data}, true
}

func (s *Scanner) readInlineArray() (pdf.Array, bool) {
	var arr pdf.Array
	for {
		obj, ok := s.nextToken()
		if !ok {
			return nil, false
		}
		if obj == pdf.Operator("]") {
			return arr, true
		}
		arr = append(arr, obj)
	}
}

// nextToken returns the next token.  Operators and the structural tokens
// "<<", ">>", "[" and "]" are returned as [pdf.Operator] values.  The
// boolean is false at the end of input.
func (s *Scanner) nextToken() (pdf.Object, bool) {
	for {
		s.skipWhiteSpace()
		if s.pos >= len(s.buf) {
			return nil, false
		}

		c := s.buf[s.pos]
		switch {
		case c == '/':
			s.pos++
			return s.readName(), true
		case c == '(':
			s.pos++
			return s.readString(), true
		case c == '<' && s.peekIs(1, '<'):
			s.pos += 2
			return pdf.Operator("<<"), true
		case c == '<':
			s.pos++
			str, ok := s.readHexString()
			if !ok {
				continue
			}
			return str, true
		case c == '>' && s.peekIs(1, '>'):
			s.pos += 2
			return pdf.Operator(">>"), true
		case c == '[' || c == ']' || c == '{' || c == '}':
			s.pos++
			return pdf.Operator([]byte{c}), true
		case class[c] == delimiter:
			// stray ')' or '>'
			s.pos++
			continue
		}

		start := s.pos
		for s.pos < len(s.buf) && class[s.buf[s.pos]] == regular {
			s.pos++
		}
		word := s.buf[start:s.pos]

		if x := parseNumber(word); x != nil {
			return x, true
		}
		switch string(word) {
		case "true":
			return pdf.Bool(true), true
		case "false":
			return pdf.Bool(false), true
		case "null":
			return nil, true
		}
		return pdf.Operator(word), true
	}
}

func (s *Scanner) peekIs(offset int, c byte) bool {
	i := s.pos + offset
	return i < len(s.buf) && s.buf[i] == c
}

// readString reads a PDF string, not including the leading parenthesis.
// An unterminated string extends to the end of the input.
func (s *Scanner) readString() pdf.String {
	var res []byte
	level := 1
	for s.pos < len(s.buf) {
		b := s.buf[s.pos]
		s.pos++
		switch b {
		case '(':
			level++
			res = append(res, b)
		case ')':
			level--
			if level == 0 {
				return pdf.String(res)
			}
			res = append(res, b)
		case '\\':
			if s.pos >= len(s.buf) {
				return pdf.String(res)
			}
			b = s.buf[s.pos]
			s.pos++
			switch b {
			case 'n':
				res = append(res, '\n')
			case 'r':
				res = append(res, '\r')
			case 't':
				res = append(res, '\t')
			case 'b':
				res = append(res, '\b')
			case 'f':
				res = append(res, '\f')
			case '\n':
				// line continuation
			case '\r':
				if s.pos < len(s.buf) && s.buf[s.pos] == '\n' {
					s.pos++
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				oct := b - '0'
				for i := 0; i < 2 && s.pos < len(s.buf); i++ {
					d := s.buf[s.pos]
					if d < '0' || d > '7' {
						break
					}
					oct = oct*8 + (d - '0')
					s.pos++
				}
				res = append(res, oct)
			default:
				res = append(res, b)
			}
		default:
			res = append(res, b)
		}
	}
	return pdf.String(res)
}

// readHexString reads a hexadecimal string, not including the leading '<'.
func (s *Scanner) readHexString() (pdf.String, bool) {
	var res []byte
	first := true
	var hi byte
	for {
		if s.pos >= len(s.buf) {
			return nil, false
		}
		b := s.buf[s.pos]
		s.pos++
		if b == '>' {
			break
		}
		if class[b] == space {
			continue
		}
		d := hexDigit(b)
		if d == 255 {
			for s.pos < len(s.buf) && s.buf[s.pos] != '>' {
				s.pos++
			}
			s.pos++
			return nil, false
		}
		if first {
			hi = d << 4
		} else {
			res = append(res, hi|d)
		}
		first = !first
	}
	if !first {
		res = append(res, hi)
	}
	return pdf.String(res), true
}

// readName reads a PDF name object, not including the leading slash.
func (s *Scanner) readName() pdf.Name {
	var name []byte
	for s.pos < len(s.buf) {
		b := s.buf[s.pos]
		if class[b] != regular {
			break
		}
		if b == '#' && s.pos+2 < len(s.buf) {
			hi, lo := hexDigit(s.buf[s.pos+1]), hexDigit(s.buf[s.pos+2])
			if hi != 255 && lo != 255 {
				name = append(name, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		name = append(name, b)
		s.pos++
	}
	return pdf.Name(name)
}

// skipWhiteSpace skips all white space and comments.
func (s *Scanner) skipWhiteSpace() {
	for s.pos < len(s.buf) {
		b := s.buf[s.pos]
		if class[b] == space {
			s.pos++
		} else if b == '%' {
			for s.pos < len(s.buf) && s.buf[s.pos] != '\n' && s.buf[s.pos] != '\r' {
				s.pos++
			}
		} else {
			break
		}
	}
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 255
}

// parseNumber tries to interpret s as a number.  The function returns
// [pdf.Integer] or [pdf.Real] if s is a valid number, and nil otherwise.
func parseNumber(s []byte) pdf.Object {
	if len(s) == 0 {
		return nil
	}
	x, err := strconv.ParseInt(string(s), 10, 64)
	if err == nil {
		return pdf.Integer(x)
	}

	digits := 0
	for i, c := range s {
		switch {
		case i == 0 && (c == '+' || c == '-'):
		case c == '.':
		case c >= '0' && c <= '9':
			digits++
		default:
			return nil
		}
	}
	if digits == 0 {
		return nil
	}
	y, err := strconv.ParseFloat(string(s), 64)
	if err != nil || math.IsInf(y, 0) || math.IsNaN(y) {
		return nil
	}
	return pdf.Real(y)
}

type characterClass byte

const (
	regular characterClass = iota
	space
	delimiter
)

var class = func() [256]characterClass {
	var c [256]characterClass
	for _, b := range []byte{0, '\t', '\n', '\f', '\r', ' '} {
		c[b] = space
	}
	for _, b := range []byte("()<>[]{}/%") {
		c[b] = delimiter
	}
	return c
}()
