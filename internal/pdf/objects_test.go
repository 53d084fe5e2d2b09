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

package pdf

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		in  Object
		out string
	}{
		{Bool(true), "true"},
		{Integer(-7), "-7"},
		{Real(1), "1."},
		{Real(0.25), "0.25"},
		{String("a"), "(a)"},
		{String("a (test version)"), "(a (test version))"},
		{String("a (test version"), "(a \\(test version)"},
		{String(""), "()"},
		{String("\000"), "<00>"},
		{Name("Im0"), "/Im0"},
		{Name("A B#"), "/A#20B#23"},
		{Array{Integer(1), nil, Integer(3)}, "[1 null 3]"},
		{Dict{"B": Integer(2), "A": Integer(1), "C": nil}, "<<\n/A 1\n/B 2\n>>"},
		{Reference{Number: 12}, "12 0 R"},
	}
	for _, test := range cases {
		out := format(test.in)
		if out != test.out {
			t.Errorf("wrongly formatted, expected %q but got %q", test.out, out)
		}
	}
}

func TestTextString(t *testing.T) {
	cases := []string{
		"",
		"hello",
		"\000\011\n\f\r",
		"ein Bär",
		"o țesătură",
		"Document exclusivement destiné à la location",
		"€ and „quotes“",
		"中文",
	}
	for _, test := range cases {
		enc := TextString(test)
		out := enc.AsTextString()
		if out != test {
			t.Errorf("wrong text: %q != %q", out, test)
		}
	}
}

func TestDateString(t *testing.T) {
	PST := time.FixedZone("PST", -8*60*60)
	cases := []time.Time{
		time.Unix(0, 0).UTC(),
		time.Date(1998, 12, 23, 19, 52, 0, 0, PST),
		time.Date(2020, 12, 24, 16, 30, 12, 0, time.FixedZone("", 90*60)),
	}
	for _, test := range cases {
		enc := Date(test)
		out, err := enc.AsDate()
		if err != nil {
			t.Error(err)
		} else if !test.Equal(out) {
			t.Errorf("wrong time: %s != %s (%q)", out, test, enc)
		}
	}

	if got := string(Date(time.Unix(0, 0).UTC())); got != "D:19700101000000+00'00'" {
		t.Errorf("unexpected epoch encoding %q", got)
	}
}

func TestDecodeDate(t *testing.T) {
	cases := []string{
		"D:19981223195200-08'00'",
		"D:20000101000000Z",
		"D:20201224163012+01'30'",
		"D:20010809191510 ",
		"20010809",
	}
	for i, test := range cases {
		_, err := TextString(test).AsDate()
		if err != nil {
			t.Errorf("%d %q %s\n", i, test, err)
		}
	}
}

func TestStream(t *testing.T) {
	stream := &Stream{
		Dict: Dict{"Type": Name("XObject")},
		Data: []byte("\nbinary\000data\n"),
	}
	out := format(stream)
	if !strings.Contains(out, "/Length 13") {
		t.Errorf("missing length in %q", out)
	}
	if !strings.HasSuffix(out, "stream\n\nbinary\000data\n\nendstream") {
		t.Errorf("wrong stream body %q", out)
	}
	if _, ok := stream.Dict["Length"]; ok {
		t.Error("stream dict was modified")
	}
}

func TestWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatal(err)
	}

	catRef := w.Alloc()
	unused := w.Alloc()
	infoRef, err := w.WriteIndirect(Dict{"Producer": TextString("test")})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Write(catRef, Dict{"Type": Name("Catalog")})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(catRef, Dict{}); err == nil {
		t.Error("object written twice")
	}

	err = w.Close(catRef, &infoRef)
	if err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-1.7\n") {
		t.Error("missing header")
	}
	if !strings.Contains(out, "xref\n0 4\n0000000000 65535 f\r\n") {
		t.Errorf("bad xref table:\n%s", out)
	}
	if !strings.HasSuffix(out, "%%EOF\n") {
		t.Error("missing trailer")
	}

	// the unused object is listed as free
	lines := strings.Split(out, "\r\n")
	var free int
	for _, l := range lines {
		if strings.HasSuffix(l, "65535 f") {
			free++
		}
	}
	if free != 2 {
		t.Errorf("expected 2 free entries (0 and %s), got %d", unused, free)
	}

	if err := w.Close(catRef, nil); err == nil {
		t.Error("second Close succeeded")
	}
}

func TestWriterMissingCatalog(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(w.Alloc(), nil); err == nil {
		t.Error("missing catalog not detected")
	}
}

func format(x Object) string {
	buf := &bytes.Buffer{}
	if x == nil {
		buf.WriteString("null")
	} else {
		_ = x.PDF(buf)
	}
	return buf.String()
}
