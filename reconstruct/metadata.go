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


// Package reconstruct builds the output artifacts: re-encoded images and
// new PDF containers holding one full-page image per page, with document
// metadata governed by a [Policy].
package reconstruct

import "time"

// Producer is the value of the Producer field in every generated PDF file.
const Producer = "MetafiliX Secure Engine"

// Epoch is the timestamp written in place of the creation and modification
// dates when metadata is removed.
var Epoch = time.Unix(0, 0).UTC()

// Metadata is the document-level metadata of a PDF file.  The same fields
// are written to the information dictionary and to the XMP packet.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string

	CreationDate time.Time
	ModDate      time.Time
}

// Policy decides which metadata end up in a generated file.
type Policy struct {
	// Producer replaces the source's producer in all outputs.
	Producer string

	// Epoch replaces all dates when metadata is removed.
	Epoch time.Time

	// Now supplies dates which are missing from the source, when metadata
	// is kept.
	Now func() time.Time
}

// DefaultPolicy returns the policy with the [Producer] sentinel, the Unix
// epoch and the system clock.
func DefaultPolicy() Policy {
	return Policy{
		Producer: Producer,
		Epoch:    Epoch,
		Now:      time.Now,
	}
}

// Apply returns the metadata for a new file derived from src.
//
// If remove is set, the result is a clean slate: all text fields are empty
// except for the producer, and both dates are the epoch.  Otherwise the
// fields of src are kept, the producer is replaced, and missing dates are
// set to the current time.
func (p Policy) Apply(src Metadata, remove bool) Metadata {
	producer := p.Producer
	if producer == "" {
		producer = Producer
	}

	if remove {
		return Metadata{
			Producer:     producer,
			CreationDate: p.Epoch,
			ModDate:      p.Epoch,
		}
	}

	res := src
	res.Producer = producer
	if res.CreationDate.IsZero() || res.ModDate.IsZero() {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		t := now()
		if res.CreationDate.IsZero() {
			res.CreationDate = t
		}
		if res.ModDate.IsZero() {
			res.ModDate = t
		}
	}
	return res
}
