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


package batch

import "slices"

// Status is the processing state of a document.
type Status string

// These are the possible values of [Status].
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// transitions lists the allowed state changes.  A document which is being
// processed can be resubmitted, which supersedes the current run.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusDone, StatusError},
	StatusDone:       {StatusProcessing},
	StatusError:      {StatusProcessing},
}

// CanTransition reports whether a document may change from one status to
// another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Finished reports whether s is a final state of a run.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusError
}

func (s Status) String() string {
	return string(s)
}
