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
	"errors"
	"fmt"
	"io"
)

// Writer writes a new PDF file.
//
// Objects are written in the order in which [Writer.Write] is called.  The
// cross-reference table and the trailer are written by [Writer.Close].
type Writer struct {
	w       *posWriter
	xref    map[int]int64
	nextRef int
	closed  bool
}

// NewWriter prepares a PDF file for writing.  The file header is written
// immediately.
func NewWriter(w io.Writer) (*Writer, error) {
	pdf := &Writer{
		w:       &posWriter{w: w},
		xref:    make(map[int]int64),
		nextRef: 1,
	}

	_, err := io.WriteString(pdf.w, "%PDF-1.7\n%\x80\x80\x80\x80\n")
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// Alloc allocates an object number for an indirect object.
func (pdf *Writer) Alloc() Reference {
	ref := Reference{Number: pdf.nextRef}
	pdf.nextRef++
	return ref
}

// Write writes obj to the file as the indirect object ref.  The reference
// must have been obtained from [Writer.Alloc] and must not have been used
// before.
func (pdf *Writer) Write(ref Reference, obj Object) error {
	if pdf.closed {
		return errClosed
	}
	if ref.Number <= 0 || ref.Number >= pdf.nextRef {
		return fmt.Errorf("invalid reference %s", ref)
	}
	if _, seen := pdf.xref[ref.Number]; seen {
		return fmt.Errorf("object %s already written", ref)
	}

	pos := pdf.w.pos
	_, err := fmt.Fprintf(pdf.w, "%d %d obj\n", ref.Number, ref.Generation)
	if err != nil {
		return err
	}
	if obj == nil {
		_, err = io.WriteString(pdf.w, "null")
	} else {
		err = obj.PDF(pdf.w)
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(pdf.w, "\nendobj\n")
	if err != nil {
		return err
	}

	pdf.xref[ref.Number] = pos
	return nil
}

// WriteIndirect allocates a new reference and writes obj as the
// corresponding indirect object.
func (pdf *Writer) WriteIndirect(obj Object) (Reference, error) {
	ref := pdf.Alloc()
	return ref, pdf.Write(ref, obj)
}

// Close writes the cross-reference table and the trailer.  The catalog
// reference is required, info may be nil.  Allocated objects which were
// never written are listed as free.
func (pdf *Writer) Close(catalog Reference, info *Reference) error {
	if pdf.closed {
		return errClosed
	}
	if _, ok := pdf.xref[catalog.Number]; !ok {
		return errors.New("missing /Catalog")
	}

	trailer := Dict{
		"Size": Integer(pdf.nextRef),
		"Root": catalog,
	}
	if info != nil {
		trailer["Info"] = *info
	}

	xRefPos := pdf.w.pos
	_, err := fmt.Fprintf(pdf.w, "xref\n0 %d\n", pdf.nextRef)
	if err != nil {
		return err
	}
	for i := 0; i < pdf.nextRef; i++ {
		pos, ok := pdf.xref[i]
		if ok {
			_, err = fmt.Fprintf(pdf.w, "%010d 00000 n\r\n", pos)
		} else {
			_, err = io.WriteString(pdf.w, "0000000000 65535 f\r\n")
		}
		if err != nil {
			return err
		}
	}

	_, err = io.WriteString(pdf.w, "trailer\n")
	if err != nil {
		return err
	}
	err = trailer.PDF(pdf.w)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(pdf.w, "\nstartxref\n%d\n%%%%EOF\n", xRefPos)
	if err != nil {
		return err
	}

	pdf.closed = true
	return nil
}

var errClosed = errors.New("pdf writer already closed")

type posWriter struct {
	w   io.Writer
	pos int64
}

func (w *posWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}
