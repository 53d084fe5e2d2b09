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


package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		level string
		dev   bool
		want  zapcore.Level
	}{
		{"", false, zapcore.InfoLevel},
		{"debug", false, zapcore.DebugLevel},
		{"WARN", true, zapcore.WarnLevel},
		{"error", true, zapcore.ErrorLevel},
	}
	for _, test := range cases {
		log, err := New(test.level, test.dev)
		if err != nil {
			t.Fatal(err)
		}
		if !log.Core().Enabled(test.want) {
			t.Errorf("%q: level %s disabled", test.level, test.want)
		}
		if test.want > zapcore.DebugLevel && log.Core().Enabled(test.want-1) {
			t.Errorf("%q: level %s enabled", test.level, test.want-1)
		}
	}

	if _, err := New("loud", false); err == nil {
		t.Error("invalid level accepted")
	}
}
