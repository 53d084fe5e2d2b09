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

package metafilix

import (
	"errors"
	"strconv"
)

// These errors classify the failures of a pipeline run.  Use [errors.Is] to
// test for them; the concrete error is usually an [*Error].
var (
	// ErrUnsupportedMediaType is returned for inputs which are not PDF,
	// JPEG, PNG or WEBP.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrTooLarge is returned by the intake when an input exceeds the
	// configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrSurfaceAllocation indicates that a raster surface could not be
	// created, for example because of an unusable page size.
	ErrSurfaceAllocation = errors.New("surface allocation failed")

	// ErrDecode indicates that a source image or PDF page could not be
	// parsed.
	ErrDecode = errors.New("decode failed")

	// ErrRasterization indicates that a surface could not be encoded.
	ErrRasterization = errors.New("rasterization failed")

	// ErrEmbed indicates that a rasterized page could not be added to the
	// reconstructed document.
	ErrEmbed = errors.New("embed failed")
)

// Error is the error type returned by the processing stages.
type Error struct {
	// Kind is one of the Err* values in this package.
	Kind error

	// Page is the 1-based page number for PDF inputs, or 0 if the failure
	// is not tied to a page.
	Page int

	Err error
}

// Wrap returns an [*Error] of the given kind.  If err is nil, nil is
// returned.  If err already carries a kind, it is returned unchanged.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// WrapPage is like [Wrap] but records the page number.
func WrapPage(kind error, page int, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Page == 0 {
			e.Page = page
		}
		return err
	}
	return &Error{Kind: kind, Page: page, Err: err}
}

func (err *Error) Error() string {
	msg := "metafilix"
	if err.Page > 0 {
		msg += ": page " + strconv.Itoa(err.Page)
	}
	if err.Kind != nil {
		msg += ": " + err.Kind.Error()
	}
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

// Unwrap gives access to both the kind and the underlying error.
func (err *Error) Unwrap() []error {
	var res []error
	if err.Kind != nil {
		res = append(res, err.Kind)
	}
	if err.Err != nil {
		res = append(res, err.Err)
	}
	return res
}

// UserMessage returns a short message, suitable for showing to end users,
// which describes err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported file format, use PDF, JPEG, PNG or WEBP"
	case errors.Is(err, ErrTooLarge):
		return "file too large"
	case errors.Is(err, ErrDecode):
		return "the file could not be read"
	default:
		return "processing error"
	}
}
