// Copyright (C) 2020 Markus L. Noga
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


package nlm

import (
	"math"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/gradnlm/internal/pdist"
	"github.com/mlnoga/gradnlm/internal/qsort"
)

// builds a filter working set the same way Filter does, for white-box tests
func newTestEngine(gx, gy []float32, width int, p Params) *engine {
	c:=NewContext(nil)
	lam:=make([]float32, len(gx))
	autoScale(c, gx, gy, p.CountTargetMean, lam)
	lamHat:=make([]float32, len(gx))
	boxMeanMap(c, lam, width, p.PatchRadius, lamHat)
	return &engine{
		c     : c,
		p     : p,
		gx    : gx,
		gy    : gy,
		lamHat: lamHat,
		width : width,
		height: len(gx)/width,
		cache : pdist.CacheForStep(p.LamQuant),
	}
}

func uniformField(n int, v float32) []float32 {
	a:=make([]float32, n)
	for i:=range a {
		a[i]=v
	}
	return a
}

// A uniform field is a fixed point of the filter: every candidate patch is
// identical, all distances are exactly zero, and the weighted average of a
// constant is that constant
func TestFilterUniformFixedPoint(t *testing.T) {
	p:=DefaultParams()
	p.SearchRadius=2
	p.PatchRadius=1

	gx:=uniformField(9*9, 5.0)
	gy:=uniformField(9*9, 5.0)
	outGx, outGy, scale, err:=Filter(NewContext(nil), gx, gy, 9, p)
	if err!=nil { t.Fatalf("unexpected error %v", err) }

	wantScale:=30.0/float64(float32(math.Sqrt(50.0)))
	if math.Abs(scale-wantScale)>1e-9*wantScale {
		t.Errorf("scale=%.15g; want %.15g", scale, wantScale)
	}
	for i:=range outGx {
		if math.Abs(float64(outGx[i]-5.0))>1e-5 || math.Abs(float64(outGy[i]-5.0))>1e-5 {
			t.Errorf("pixel %d: out (%f,%f); want (5,5)", i, outGx[i], outGy[i])
		}
	}
}

func TestFilterBordersPassThrough(t *testing.T) {
	rng:=fastrand.RNG{}
	width, height:=12, 10
	gx, gy:=randomField(width*height, &rng)

	p:=DefaultParams()
	p.PatchRadius=2
	outGx, outGy, _, err:=Filter(NewContext(nil), gx, gy, width, p)
	if err!=nil { t.Fatalf("unexpected error %v", err) }
	if len(outGx)!=len(gx) || len(outGy)!=len(gy) {
		t.Fatalf("output shape %dx%d; want %dx%d", len(outGx), len(outGy), len(gx), len(gy))
	}

	pr:=p.PatchRadius
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			if y>=pr && y<height-pr && x>=pr && x<width-pr { continue }
			i:=y*width+x
			if outGx[i]!=gx[i] || outGy[i]!=gy[i] {
				t.Errorf("margin pixel (%d,%d) changed: (%f,%f) vs (%f,%f)", y, x, outGx[i], outGy[i], gx[i], gy[i])
			}
		}
	}
}

// With a patch radius exceeding the field, everything is margin
func TestFilterAllMargin(t *testing.T) {
	rng:=fastrand.RNG{}
	gx, gy:=randomField(5*4, &rng)

	p:=DefaultParams()
	p.PatchRadius=3
	outGx, outGy, _, err:=Filter(NewContext(nil), gx, gy, 5, p)
	if err!=nil { t.Fatalf("unexpected error %v", err) }
	for i:=range gx {
		if outGx[i]!=gx[i] || outGy[i]!=gy[i] {
			t.Errorf("pixel %d changed in an all-margin field", i)
		}
	}
}

// With topk=1, only the candidate with the smallest patch distance
// survives. On a strictly ramped field that is always the center pixel
// itself, whose distance to its own patch is exactly zero
func TestFilterTopK1(t *testing.T) {
	width, height:=9, 9
	gx:=make([]float32, width*height)
	gy:=make([]float32, width*height)
	for i:=range gx {
		gx[i]=float32(i+1)
		gy[i]=-0.5*float32(i+1)
	}

	p:=DefaultParams()
	p.SearchRadius=2
	p.PatchRadius=1
	p.TopK=1
	outGx, outGy, _, err:=Filter(NewContext(nil), gx, gy, width, p)
	if err!=nil { t.Fatalf("unexpected error %v", err) }
	for i:=range gx {
		if outGx[i]!=gx[i] || outGy[i]!=gy[i] {
			t.Errorf("pixel %d: out (%f,%f); want unchanged (%f,%f)", i, outGx[i], outGy[i], gx[i], gy[i])
		}
	}
}

func TestPixelWeightsNormalized(t *testing.T) {
	rng:=fastrand.RNG{}
	width, height:=11, 9
	gx, gy:=randomField(width*height, &rng)

	p:=DefaultParams()
	p.SearchRadius=2
	p.PatchRadius=1
	e:=newTestEngine(gx, gy, width, p)

	winSize:=2*p.SearchRadius+1
	for _, yx:=range [][2]int{{1,1},{4,5},{height-2,width-2}} {
		cands, ws, wsum:=e.pixelWeights(yx[0], yx[1], make([]qsort.Candidate, 0, winSize*winSize), make([]float64, winSize*winSize))
		if len(cands)==0 { t.Fatalf("pixel (%d,%d) has no candidates", yx[0], yx[1]) }

		sum:=0.0
		for i:=range cands {
			w:=ws[i]/wsum
			if w<0 { t.Errorf("pixel (%d,%d) candidate %d has negative weight %g", yx[0], yx[1], i, w) }
			sum+=w
		}
		if math.Abs(sum-1.0)>1e-12 {
			t.Errorf("pixel (%d,%d) weights sum to %.15g; want 1", yx[0], yx[1], sum)
		}
	}
}

// Larger rho softens the weighting: the anomalous center pixel keeps less
// of its own weight as the temperature rises, so its output shrinks toward
// its uniform neighborhood
func TestRhoMonotonicity(t *testing.T) {
	width, height:=9, 9
	gx:=uniformField(width*height, 0.1)
	gy:=make([]float32, width*height)
	center:=4*width+4
	gx[center]=10.0

	p:=DefaultParams()
	p.SearchRadius=2
	p.PatchRadius=1

	prevSelf:=math.Inf(1)
	prevOut:=math.Inf(1)
	for _, rho:=range []float64{0.5, 1.5, 5.0, 20.0} {
		p.Rho=rho
		e:=newTestEngine(gx, gy, width, p)

		winSize:=2*p.SearchRadius+1
		cands, ws, wsum:=e.pixelWeights(4, 4, make([]qsort.Candidate, 0, winSize*winSize), make([]float64, winSize*winSize))
		self:=math.NaN()
		for i, cand:=range cands {
			if cand.Index==int32(center) {
				self=ws[i]/wsum
			}
		}
		if math.IsNaN(self) { t.Fatalf("rho=%g: center pixel not among its own candidates", rho) }
		if self>=prevSelf {
			t.Errorf("rho=%g: self-weight %g did not decrease from %g", rho, self, prevSelf)
		}
		prevSelf=self

		outGx, _, _, err:=Filter(NewContext(nil), gx, gy, width, p)
		if err!=nil { t.Fatalf("unexpected error %v", err) }
		out:=float64(outGx[center])
		if out>=prevOut {
			t.Errorf("rho=%g: center output %g did not decrease from %g", rho, out, prevOut)
		}
		prevOut=out
	}
}

func TestFilterShapeMismatch(t *testing.T) {
	p:=DefaultParams()
	cases:=[]struct{
		nx, ny, width int
	}{
		{9, 8, 3},    // channel length mismatch
		{9, 9, 0},    // zero width
		{9, 9, -3},   // negative width
		{8, 8, 3},    // length not a multiple of width
		{0, 0, 3},    // empty field
	}
	for _, tc:=range cases {
		_, _, _, err:=Filter(NewContext(nil), make([]float32, tc.nx), make([]float32, tc.ny), tc.width, p)
		if err==nil {
			t.Errorf("nx=%d ny=%d width=%d: expected shape error", tc.nx, tc.ny, tc.width)
		}
	}
}

func TestFilterBadParams(t *testing.T) {
	gx:=uniformField(9*9, 1.0)
	gy:=uniformField(9*9, 1.0)
	bad:=[]Params{
		{SearchRadius: -1, PatchRadius: 1, Rho: 1.5, CountTargetMean: 30, LamQuant: 0.02},
		{SearchRadius: 3, PatchRadius: -1, Rho: 1.5, CountTargetMean: 30, LamQuant: 0.02},
		{SearchRadius: 3, PatchRadius: 1, Rho: 0, CountTargetMean: 30, LamQuant: 0.02},
		{SearchRadius: 3, PatchRadius: 1, Rho: 1.5, CountTargetMean: 0, LamQuant: 0.02},
		{SearchRadius: 3, PatchRadius: 1, Rho: 1.5, CountTargetMean: 30, LamQuant: 0},
	}
	for i, p:=range bad {
		_, _, _, err:=Filter(NewContext(nil), gx, gy, 9, p)
		if err==nil {
			t.Errorf("case %d: expected parameter error", i)
		}
	}
}

func BenchmarkFilter64x64(b *testing.B) {
	rng:=fastrand.RNG{}
	gx, gy:=randomField(64*64, &rng)
	p:=DefaultParams()
	c:=NewContext(nil)

	b.ResetTimer()
	for i:=0; i<b.N; i++ {
		_, _, _, err:=Filter(c, gx, gy, 64, p)
		if err!=nil { b.Fatal(err) }
	}
}
