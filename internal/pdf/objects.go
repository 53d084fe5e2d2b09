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

// Package pdf implements the small subset of the PDF object model which is
// needed to write the reconstructed documents, and to represent the operands
// found in content streams.
//
// The native object types are [Bool], [Integer], [Real], [Name], [String],
// [Array], [Dict], [*Stream] and [Reference].  All of them implement the
// [Object] interface.  A [Writer] lays out indirect objects sequentially
// and finishes the file with a classic cross-reference table.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Object represents an object in a PDF file.
type Object interface {
	// PDF writes the PDF file representation of the object to w.
	PDF(w io.Writer) error
}

// Bool represents a boolean value in a PDF file.
type Bool bool

// PDF implements the [Object] interface.
func (x Bool) PDF(w io.Writer) error {
	s := "false"
	if x {
		s = "true"
	}
	_, err := io.WriteString(w, s)
	return err
}

// Integer represents an integer constant in a PDF file.
type Integer int64

// PDF implements the [Object] interface.
func (x Integer) PDF(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(x), 10))
	return err
}

// Real represents a real number in a PDF file.
type Real float64

// PDF implements the [Object] interface.
func (x Real) PDF(w io.Writer) error {
	s := strconv.FormatFloat(float64(x), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += "."
	}
	_, err := io.WriteString(w, s)
	return err
}

// String represents a raw string in a PDF file.  The character set encoding,
// if any, is determined by the context.
type String []byte

// PDF implements the [Object] interface.
//
// Strings with only a few special characters are written in literal form,
// all others in hexadecimal form.
func (x String) PDF(w io.Writer) error {
	level := 0
	for _, c := range x {
		if c == '(' {
			level++
		} else if c == ')' {
			level--
			if level < 0 {
				break
			}
		}
	}
	balanced := level == 0

	var special []int
	for i, c := range x {
		if c == '\r' || c == '\n' || c == '\t' {
			continue
		}
		if c < 32 || c >= 127 || c == '\\' ||
			!balanced && (c == '(' || c == ')') {
			special = append(special, i)
		}
	}

	buf := &bytes.Buffer{}
	if 3*len(special) > len(x) {
		fmt.Fprintf(buf, "<%x>", []byte(x))
	} else {
		buf.WriteByte('(')
		pos := 0
		for _, i := range special {
			buf.Write(x[pos:i])
			switch c := x[i]; c {
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '(':
				buf.WriteString(`\(`)
			case ')':
				buf.WriteString(`\)`)
			case '\\':
				buf.WriteString(`\\`)
			default:
				fmt.Fprintf(buf, `\%03o`, c)
			}
			pos = i + 1
		}
		buf.Write(x[pos:])
		buf.WriteByte(')')
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// AsTextString interprets x as a PDF "text string" and returns the
// corresponding utf-8 encoded string.
func (x String) AsTextString() string {
	if len(x) >= 2 && x[0] == 0xFE && x[1] == 0xFF {
		var u []uint16
		for i := 2; i+1 < len(x); i += 2 {
			u = append(u, uint16(x[i])<<8|uint16(x[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if len(x) >= 3 && x[0] == 0xEF && x[1] == 0xBB && x[2] == 0xBF {
		return string(x[3:])
	}
	return pdfDocDecode(x)
}

// TextString creates a String object using the "text string" encoding,
// i.e. either PDFDocEncoding or UTF-16BE with a byte order mark.
func TextString(s string) String {
	rr := []rune(s)
	buf := make([]byte, 0, len(rr))
	for _, r := range rr {
		c, ok := pdfDocEncode(r)
		if !ok {
			return utf16String(rr)
		}
		buf = append(buf, c)
	}
	return String(buf)
}

func utf16String(rr []rune) String {
	enc := utf16.Encode(rr)
	buf := make([]byte, 2*len(enc)+2)
	buf[0] = 0xFE
	buf[1] = 0xFF
	for i, c := range enc {
		buf[2*i+2] = byte(c >> 8)
		buf[2*i+3] = byte(c)
	}
	return String(buf)
}

// Date creates a PDF String object encoding the given date and time.
func Date(t time.Time) String {
	s := t.Format("D:20060102150405-0700")
	k := len(s) - 2
	return String(s[:k] + "'" + s[k:] + "'")
}

// AsDate converts a PDF date string to a time.Time object.
func (x String) AsDate() (time.Time, error) {
	s := strings.TrimSpace(x.AsTextString())
	if s == "" || s == "D:" {
		return time.Time{}, nil
	}
	if !strings.HasPrefix(s, "D:") {
		s = "D:" + s
	}
	s = strings.ReplaceAll(s, "'", "")

	formats := []string{
		"D:20060102150405-0700",
		"D:20060102150405-07",
		"D:20060102150405Z0000",
		"D:20060102150405Z00",
		"D:20060102150405Z",
		"D:20060102150405",
		"D:200601021504",
		"D:2006010215",
		"D:20060102",
		"D:200601",
		"D:2006",
	}
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDate
}

var errNoDate = errors.New("not a valid date string")

// Name represents a name in a PDF file.
type Name string

// PDF implements the [Object] interface.
func (x Name) PDF(w io.Writer) error {
	buf := &bytes.Buffer{}
	buf.WriteByte('/')
	for i := 0; i < len(x); i++ {
		c := x[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02x", c)
		} else {
			buf.WriteByte(c)
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// Array represent an array of objects in a PDF file.
type Array []Object

// PDF implements the [Object] interface.
func (x Array) PDF(w io.Writer) error {
	_, err := io.WriteString(w, "[")
	if err != nil {
		return err
	}
	for i, val := range x {
		if i > 0 {
			_, err = io.WriteString(w, " ")
			if err != nil {
				return err
			}
		}
		if val == nil {
			_, err = io.WriteString(w, "null")
		} else {
			err = val.PDF(w)
		}
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "]")
	return err
}

// Dict represent a Dictionary object in a PDF file.
//
// Keys are written in sorted order, so that the output does not depend on
// the iteration order of the map.
type Dict map[Name]Object

// PDF implements the [Object] interface.
func (x Dict) PDF(w io.Writer) error {
	if x == nil {
		_, err := io.WriteString(w, "null")
		return err
	}

	keys := make([]Name, 0, len(x))
	for key, val := range x {
		if val != nil {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	_, err := io.WriteString(w, "<<")
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err = io.WriteString(w, "\n")
		if err != nil {
			return err
		}
		err = key.PDF(w)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, " ")
		if err != nil {
			return err
		}
		err = x[key].PDF(w)
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "\n>>")
	return err
}

// Stream represent a stream object in a PDF file.  The /Length entry is
// filled in automatically when the stream is written.
type Stream struct {
	Dict
	Data []byte
}

// PDF implements the [Object] interface.
func (x *Stream) PDF(w io.Writer) error {
	dict := make(Dict, len(x.Dict)+1)
	for key, val := range x.Dict {
		dict[key] = val
	}
	dict["Length"] = Integer(len(x.Data))

	err := dict.PDF(w)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\nstream\n")
	if err != nil {
		return err
	}
	_, err = w.Write(x.Data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\nendstream")
	return err
}

// Reference represents a reference to an indirect object in a PDF file.
type Reference struct {
	Number     int
	Generation uint16
}

func (x Reference) String() string {
	s := "obj_" + strconv.Itoa(x.Number)
	if x.Generation > 0 {
		s += "@" + strconv.FormatUint(uint64(x.Generation), 10)
	}
	return s
}

// PDF implements the [Object] interface.
func (x Reference) PDF(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", x.Number, x.Generation)
	return err
}

// Operator is a content stream operator, as returned by the content stream
// scanner.
type Operator string

// PDF implements the [Object] interface.
func (x Operator) PDF(w io.Writer) error {
	_, err := io.WriteString(w, string(x))
	return err
}

// GetNumber converts an Integer or Real object to float64.
func GetNumber(obj Object) (float64, bool) {
	switch x := obj.(type) {
	case Integer:
		return float64(x), true
	case Real:
		return float64(x), true
	}
	return 0, false
}
