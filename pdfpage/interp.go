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

package pdfpage

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	"github.com/garnajee/metafiliX/internal/pdf"
	"github.com/garnajee/metafiliX/internal/pdf/scanner"
	"github.com/garnajee/metafiliX/raster"
)

// maxFormDepth limits the nesting of form XObjects.
const maxFormDepth = 16

// checkEvery is the number of operators between two checks for
// cancellation.
const checkEvery = 256

// graphicsState is the part of the PDF graphics state which affects
// rendering.
type graphicsState struct {
	ctm  matrix.Matrix
	clip image.Rectangle

	fillSpace, strokeSpace *colorSpace
	fill, stroke           color.NRGBA
	fillAlpha, strokeAlpha float64
	noFill, noStroke       bool

	lineWidth float64

	font       *pdfFont
	fontSize   float64
	charSpace  float64
	wordSpace  float64
	hScale     float64
	leading    float64
	rise       float64
	renderMode int
}

type interpreter struct {
	ctx context.Context
	doc *Document
	log *zap.Logger
	s   *raster.Surface

	gs    graphicsState
	stack []graphicsState
	floor int

	path        raster.Builder
	cur, start  vec.Vec2
	clipPending bool

	tm, tlm matrix.Matrix

	depth int
	ops   int
}

func newInterpreter(ctx context.Context, doc *Document, s *raster.Surface, m matrix.Matrix) *interpreter {
	return &interpreter{
		ctx: ctx,
		doc: doc,
		log: doc.log,
		s:   s,
		gs: graphicsState{
			ctm:         m,
			clip:        s.Bounds(),
			fillSpace:   deviceGray,
			strokeSpace: deviceGray,
			fill:        color.NRGBA{A: 255},
			stroke:      color.NRGBA{A: 255},
			fillAlpha:   1,
			strokeAlpha: 1,
			lineWidth:   1,
			hScale:      1,
		},
		tm:  matrix.Identity,
		tlm: matrix.Identity,
	}
}

// run interprets a content stream with the given resources.
func (in *interpreter) run(content []byte, res types.Dict) error {
	sc := scanner.New()
	return sc.Scan(content)(func(op string, args []pdf.Object) error {
		in.ops++
		if in.ops%checkEvery == 0 {
			if err := in.ctx.Err(); err != nil {
				return err
			}
		}
		return in.do(op, args, res)
	})
}

// nums returns the last n operands as numbers.
func nums(args []pdf.Object, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	res := make([]float64, n)
	for i, obj := range args[len(args)-n:] {
		x, ok := pdf.GetNumber(obj)
		if !ok {
			return nil, false
		}
		res[i] = x
	}
	return res, true
}

func lastName(args []pdf.Object) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	n, ok := args[len(args)-1].(pdf.Name)
	return string(n), ok
}

func (in *interpreter) do(op string, args []pdf.Object, res types.Dict) error {
	gs := &in.gs
	switch op {
	// graphics state
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if len(in.stack) > in.floor {
			in.gs = in.stack[len(in.stack)-1]
			in.stack = in.stack[:len(in.stack)-1]
		}
	case "cm":
		if a, ok := nums(args, 6); ok {
			gs.ctm = matrix.Matrix(a).Mul(gs.ctm)
		}
	case "w":
		if a, ok := nums(args, 1); ok {
			gs.lineWidth = a[0]
		}
	case "gs":
		if name, ok := lastName(args); ok {
			in.setExtGState(name, res)
		}

	// color
	case "g", "G", "rg", "RG", "k", "K":
		space := deviceGray
		switch op {
		case "rg", "RG":
			space = deviceRGB
		case "k", "K":
			space = deviceCMYK
		}
		a, ok := nums(args, space.components())
		if !ok {
			break
		}
		if op == "g" || op == "rg" || op == "k" {
			gs.fillSpace, gs.fill, gs.noFill = space, space.color(a), false
		} else {
			gs.strokeSpace, gs.stroke, gs.noStroke = space, space.color(a), false
		}
	case "cs", "CS":
		name, ok := lastName(args)
		if !ok {
			break
		}
		space := in.doc.colorSpaceByName(name, res)
		if op == "cs" {
			gs.fillSpace, gs.fill = space, space.initial()
			gs.noFill = space.kind == csPattern
		} else {
			gs.strokeSpace, gs.stroke = space, space.initial()
			gs.noStroke = space.kind == csPattern
		}
	case "sc", "scn", "SC", "SCN":
		space := gs.fillSpace
		if op == "SC" || op == "SCN" {
			space = gs.strokeSpace
		}
		if space.kind == csPattern {
			break
		}
		a, ok := nums(args, space.components())
		if !ok {
			break
		}
		if op == "sc" || op == "scn" {
			gs.fill, gs.noFill = space.color(a), false
		} else {
			gs.stroke, gs.noStroke = space.color(a), false
		}

	// path construction
	case "m":
		if a, ok := nums(args, 2); ok {
			in.cur = vec.Vec2{X: a[0], Y: a[1]}
			in.start = in.cur
			in.path.MoveTo(a[0], a[1])
		}
	case "l":
		if a, ok := nums(args, 2); ok {
			in.cur = vec.Vec2{X: a[0], Y: a[1]}
			in.path.LineTo(a[0], a[1])
		}
	case "c":
		if a, ok := nums(args, 6); ok {
			in.cur = vec.Vec2{X: a[4], Y: a[5]}
			in.path.CubeTo(a[0], a[1], a[2], a[3], a[4], a[5])
		}
	case "v":
		if a, ok := nums(args, 4); ok {
			c := in.cur
			in.cur = vec.Vec2{X: a[2], Y: a[3]}
			in.path.CubeTo(c.X, c.Y, a[0], a[1], a[2], a[3])
		}
	case "y":
		if a, ok := nums(args, 4); ok {
			in.cur = vec.Vec2{X: a[2], Y: a[3]}
			in.path.CubeTo(a[0], a[1], a[2], a[3], a[2], a[3])
		}
	case "h":
		if !in.path.Empty() {
			in.path.Close()
			in.cur = in.start
		}
	case "re":
		if a, ok := nums(args, 4); ok {
			in.path.Rect(a[0], a[1], a[2], a[3])
			in.cur = vec.Vec2{X: a[0], Y: a[1]}
			in.start = in.cur
		}

	// path painting
	case "S":
		in.paint(false, true)
	case "s":
		in.closePath()
		in.paint(false, true)
	case "f", "F", "f*":
		in.paint(true, false)
	case "B", "B*":
		in.paint(true, true)
	case "b", "b*":
		in.closePath()
		in.paint(true, true)
	case "n":
		in.paint(false, false)
	case "W", "W*":
		in.clipPending = true

	// text
	case "BT":
		in.tm = matrix.Identity
		in.tlm = matrix.Identity
	case "ET":
	case "Tc", "Tw", "Tz", "TL", "Ts", "Tr":
		a, ok := nums(args, 1)
		if !ok {
			break
		}
		switch op {
		case "Tc":
			gs.charSpace = a[0]
		case "Tw":
			gs.wordSpace = a[0]
		case "Tz":
			gs.hScale = a[0] / 100
		case "TL":
			gs.leading = a[0]
		case "Ts":
			gs.rise = a[0]
		case "Tr":
			gs.renderMode = int(a[0])
		}
	case "Tf":
		if len(args) < 2 {
			break
		}
		name, ok1 := args[len(args)-2].(pdf.Name)
		size, ok2 := pdf.GetNumber(args[len(args)-1])
		if ok1 && ok2 {
			gs.font = in.doc.font(in.doc.dict(res["Font"])[string(name)])
			gs.fontSize = size
		}
	case "Td":
		if a, ok := nums(args, 2); ok {
			in.moveText(a[0], a[1])
		}
	case "TD":
		if a, ok := nums(args, 2); ok {
			gs.leading = -a[1]
			in.moveText(a[0], a[1])
		}
	case "Tm":
		if a, ok := nums(args, 6); ok {
			in.tlm = matrix.Matrix(a)
			in.tm = in.tlm
		}
	case "T*":
		in.moveText(0, -gs.leading)
	case "Tj":
		if len(args) > 0 {
			if s, ok := args[len(args)-1].(pdf.String); ok {
				in.showText(s)
			}
		}
	case "'":
		in.moveText(0, -gs.leading)
		if len(args) > 0 {
			if s, ok := args[len(args)-1].(pdf.String); ok {
				in.showText(s)
			}
		}
	case "\"":
		if len(args) < 3 {
			break
		}
		if a, ok := nums(args[:len(args)-1], 2); ok {
			gs.wordSpace, gs.charSpace = a[0], a[1]
		}
		in.moveText(0, -gs.leading)
		if s, ok := args[len(args)-1].(pdf.String); ok {
			in.showText(s)
		}
	case "TJ":
		if len(args) == 0 {
			break
		}
		a, ok := args[len(args)-1].(pdf.Array)
		if !ok {
			break
		}
		for _, elem := range a {
			switch x := elem.(type) {
			case pdf.String:
				in.showText(x)
			default:
				if adj, ok := pdf.GetNumber(x); ok {
					tx := -adj / 1000 * gs.fontSize * gs.hScale
					in.tm = matrix.Translate(tx, 0).Mul(in.tm)
				}
			}
		}

	// external objects
	case "Do":
		if name, ok := lastName(args); ok {
			return in.doXObject(name, res)
		}
	case "EI":
		if len(args) > 0 {
			if img, ok := args[0].(*scanner.InlineImage); ok {
				in.drawInlineImage(img, res)
			}
		}
	case "sh":
		in.log.Debug("skipping shading")
	}
	return nil
}

func (in *interpreter) closePath() {
	if !in.path.Empty() {
		in.path.Close()
		in.cur = in.start
	}
}

// prepare sets up the surface for painting with the current graphics
// state, using m as the transformation matrix.
func (in *interpreter) prepare(m matrix.Matrix, alpha float64) {
	in.s.CTM = m
	in.s.Alpha = alpha
	in.s.Blend = raster.Normal
	in.s.Clip = in.gs.clip
}

// paint fills and/or strokes the current path, applies a pending clip
// and starts a new path.
func (in *interpreter) paint(fill, stroke bool) {
	gs := &in.gs
	if !in.path.Empty() {
		p := in.path.Path()
		if fill && !gs.noFill {
			in.prepare(gs.ctm, gs.fillAlpha)
			in.s.Fill(p, raster.Solid(gs.fill))
		}
		if stroke && !gs.noStroke {
			in.prepare(gs.ctm, gs.strokeAlpha)
			in.s.Stroke(p, strokeWidth(gs.lineWidth, gs.ctm, gs.ctm), raster.Solid(gs.stroke))
		}
		if in.clipPending {
			gs.clip = gs.clip.Intersect(boundsOf(p.Coords, gs.ctm))
		}
	}
	in.clipPending = false
	in.path.Reset()
}

// strokeWidth converts a line width in the user space of ctm to the space
// of m.  Lines are at least one device pixel wide.
func strokeWidth(w float64, ctm, m matrix.Matrix) float64 {
	user := math.Sqrt(math.Abs(ctm[0]*ctm[3] - ctm[1]*ctm[2]))
	dst := math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
	if dst == 0 {
		return 0
	}
	return max(w*user, 1) / dst
}

// boundsOf returns the device pixels touched by the bounding box of the
// given user space points.
func boundsOf(coords []vec.Vec2, m matrix.Matrix) image.Rectangle {
	if len(coords) == 0 {
		return image.Rectangle{}
	}
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		d := raster.Apply(m, c)
		xMin, xMax = min(xMin, d.X), max(xMax, d.X)
		yMin, yMax = min(yMin, d.Y), max(yMax, d.Y)
	}
	const lim = 1 << 24
	clamp := func(v float64) int {
		return int(max(-lim, min(lim, v)))
	}
	return image.Rect(
		clamp(math.Floor(xMin)), clamp(math.Floor(yMin)),
		clamp(math.Ceil(xMax)), clamp(math.Ceil(yMax)))
}

func (in *interpreter) setExtGState(name string, res types.Dict) {
	dict := in.doc.dict(in.doc.dict(res["ExtGState"])[name])
	if dict == nil {
		return
	}
	if v, ok := in.doc.number(dict["CA"]); ok {
		in.gs.strokeAlpha = clamp01(v)
	}
	if v, ok := in.doc.number(dict["ca"]); ok {
		in.gs.fillAlpha = clamp01(v)
	}
	if v, ok := in.doc.number(dict["LW"]); ok {
		in.gs.lineWidth = v
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}

// doXObject draws the named XObject.  Broken objects are skipped.
func (in *interpreter) doXObject(name string, res types.Dict) error {
	obj := in.doc.dict(res["XObject"])[name]
	if obj == nil {
		return nil
	}
	dict, data, err := in.doc.stream(obj)
	if err != nil {
		in.log.Debug("skipping XObject", zap.String("name", name), zap.Error(err))
		return nil
	}

	subtype, _ := in.doc.name(dict["Subtype"])
	switch subtype {
	case "Image":
		in.drawImageXObject(dict, data)
	case "Form":
		return in.drawForm(dict, data, res)
	}
	return nil
}

func (in *interpreter) drawForm(dict types.Dict, data []byte, parentRes types.Dict) error {
	if in.depth >= maxFormDepth {
		in.log.Debug("form XObjects nested too deeply")
		return nil
	}

	savedGS, savedFloor, savedLen := in.gs, in.floor, len(in.stack)
	savedTM, savedTLM := in.tm, in.tlm
	in.depth++
	in.floor = len(in.stack)
	defer func() {
		in.depth--
		in.gs, in.floor = savedGS, savedFloor
		in.stack = in.stack[:savedLen]
		in.tm, in.tlm = savedTM, savedTLM
		in.path.Reset()
		in.clipPending = false
	}()

	if a := in.doc.numbers(dict["Matrix"]); len(a) == 6 {
		in.gs.ctm = matrix.Matrix(a).Mul(in.gs.ctm)
	}
	if b := in.doc.numbers(dict["BBox"]); len(b) == 4 {
		corners := []vec.Vec2{
			{X: b[0], Y: b[1]}, {X: b[2], Y: b[1]},
			{X: b[2], Y: b[3]}, {X: b[0], Y: b[3]},
		}
		in.gs.clip = in.gs.clip.Intersect(boundsOf(corners, in.gs.ctm))
	}
	res := in.doc.dict(dict["Resources"])
	if res == nil {
		res = parentRes
	}
	in.path.Reset()
	return in.run(data, res)
}
