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

package scanner

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/garnajee/metafiliX/internal/pdf"
)

type op struct {
	Name string
	Args []pdf.Object
}

func collect(t *testing.T, content string) []op {
	t.Helper()
	var res []op
	err := New().Scan([]byte(content))(func(name string, args []pdf.Object) error {
		res = append(res, op{Name: name, Args: append([]pdf.Object(nil), args...)})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestScan(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []op
	}{
		{
			name:    "path",
			content: "1 0 0 1 10.5 -3 cm 0 0 m 10 10 l S",
			want: []op{
				{"cm", []pdf.Object{pdf.Integer(1), pdf.Integer(0), pdf.Integer(0), pdf.Integer(1), pdf.Real(10.5), pdf.Integer(-3)}},
				{"m", []pdf.Object{pdf.Integer(0), pdf.Integer(0)}},
				{"l", []pdf.Object{pdf.Integer(10), pdf.Integer(10)}},
				{"S", nil},
			},
		},
		{
			name:    "text",
			content: "BT /F1 12 Tf (he\\(llo\\)) Tj [(a) -120 <4142>] TJ ET",
			want: []op{
				{"BT", nil},
				{"Tf", []pdf.Object{pdf.Name("F1"), pdf.Integer(12)}},
				{"Tj", []pdf.Object{pdf.String("he(llo)")}},
				{"TJ", []pdf.Object{pdf.Array{pdf.String("a"), pdf.Integer(-120), pdf.String("AB")}}},
				{"ET", nil},
			},
		},
		{
			name:    "comments and dicts",
			content: "% comment\n/P <</MCID 3 /Lang (fr)>> BDC EMC",
			want: []op{
				{"BDC", []pdf.Object{pdf.Name("P"), pdf.Dict{"MCID": pdf.Integer(3), "Lang": pdf.String("fr")}}},
				{"EMC", nil},
			},
		},
		{
			name:    "name escapes",
			content: "/A#20B gs .5 g",
			want: []op{
				{"gs", []pdf.Object{pdf.Name("A B")}},
				{"g", []pdf.Object{pdf.Real(0.5)}},
			},
		},
		{
			name:    "octal",
			content: "(\\101\\0612) Tj",
			want: []op{
				{"Tj", []pdf.Object{pdf.String("A12")}},
			},
		},
		{
			name:    "inline image",
			content: "q BI /W 2 /H 1 /CS /G /BPC 8 /D [1 0] ID \x00\xffEI\nEI Q",
			want: []op{
				{"q", nil},
				{"EI", []pdf.Object{&InlineImage{
					Dict: pdf.Dict{"W": pdf.Integer(2), "H": pdf.Integer(1), "CS": pdf.Name("G"), "BPC": pdf.Integer(8), "D": pdf.Array{pdf.Integer(1), pdf.Integer(0)}},
					Data: []byte("\x00\xffEI"),
				}}},
				{"Q", nil},
			},
		},
		{
			name:    "inline image ending in zero bytes",
			content: "BI /W 2 /H 1 /BPC 8 /CS /G ID \x80\x00 EI BI /W 2 /H 1 ID \x00\x00\r\nEI",
			want: []op{
				{"EI", []pdf.Object{&InlineImage{
					Dict: pdf.Dict{"W": pdf.Integer(2), "H": pdf.Integer(1), "BPC": pdf.Integer(8), "CS": pdf.Name("G")},
					Data: []byte("\x80\x00"),
				}}},
				{"EI", []pdf.Object{&InlineImage{
					Dict: pdf.Dict{"W": pdf.Integer(2), "H": pdf.Integer(1)},
					Data: []byte("\x00\x00"),
				}}},
			},
		},
		{
			name:    "garbage",
			content: ") 1 2 <zz> re >",
			want: []op{
				{"re", []pdf.Object{pdf.Integer(1), pdf.Integer(2)}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, tc.content)
			if d := cmp.Diff(tc.want, got); d != "" {
				t.Errorf("unexpected tokens (-want +got):\n%s", d)
			}
		})
	}
}

func TestScanStop(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := New().Scan([]byte("q Q q Q"))(func(string, []pdf.Object) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if err != stop || n != 2 {
		t.Errorf("got %v after %d operators", err, n)
	}
}

func FuzzString(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("ABC"))
	f.Add([]byte("a(b"))
	f.Add([]byte{0, 1, 2})
	f.Add([]byte{0xFF, 0x00, '\\', ')'})
	f.Fuzz(func(t *testing.T, data []byte) {
		buf := &bytes.Buffer{}
		err := pdf.String(data).PDF(buf)
		if err != nil {
			t.Fatal(err)
		}
		buf.WriteString(" Tj")

		var got pdf.String
		err = New().Scan(buf.Bytes())(func(name string, args []pdf.Object) error {
			if name == "Tj" && len(args) == 1 {
				got, _ = args[0].(pdf.String)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("wrong string: %q != %q", got, data)
		}
	})
}

func FuzzScan(f *testing.F) {
	f.Add([]byte("BT /F1 12 Tf (x) Tj ET"))
	f.Add([]byte("BI /W 1 ID x EI"))
	f.Add([]byte("<< [ ( <"))
	f.Fuzz(func(t *testing.T, data []byte) {
		_ = New().Scan(data)(func(string, []pdf.Object) error {
			return nil
		})
	})
}
