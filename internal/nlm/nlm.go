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
	"errors"
	"fmt"
	"math"
	"github.com/mlnoga/gradnlm/internal/pdist"
	"github.com/mlnoga/gradnlm/internal/qsort"
)

// Parameters for the Poisson non-local means gradient filter
type Params struct {
	SearchRadius    int     // radius of the candidate search window
	PatchRadius     int     // radius of the similarity patch
	Rho             float64 // weighting bandwidth; larger values soften the weights
	CountTargetMean float64 // target mean of the Poisson count scale
	LamQuant        float64 // rate quantization step for the distance cache
	TopK            int     // keep only the k most similar candidates; <=0 keeps all
}

// Returns the default filter parameters of the reference pipeline
func DefaultParams() Params {
	return Params{
		SearchRadius   : 3,
		PatchRadius    : 1,
		Rho            : 1.5,
		CountTargetMean: 30.0,
		LamQuant       : 0.02,
		TopK           : 0,
	}
}

// Validates that both gradient channels form the same non-empty 2D grid
// with the given line width, and returns the number of rows
func validateShape(gx, gy []float32, width int) (height int, err error) {
	if len(gx)!=len(gy) {
		return 0, errors.New(fmt.Sprintf("gradient channels must have the same 2D shape: %d vs %d pixels", len(gx), len(gy)))
	}
	if width<=0 || len(gx)==0 || len(gx)%width!=0 {
		return 0, errors.New(fmt.Sprintf("invalid gradient field shape: %d pixels with line width %d", len(gx), width))
	}
	return len(gx)/width, nil
}

func validateParams(p Params) error {
	if p.SearchRadius<0 || p.PatchRadius<0 {
		return errors.New(fmt.Sprintf("radii must be non-negative, have search radius %d patch radius %d", p.SearchRadius, p.PatchRadius))
	}
	if p.Rho<=0 {
		return errors.New(fmt.Sprintf("rho must be positive, have %g", p.Rho))
	}
	if p.CountTargetMean<=0 {
		return errors.New(fmt.Sprintf("count target mean must be positive, have %g", p.CountTargetMean))
	}
	if p.LamQuant<=0 {
		return errors.New(fmt.Sprintf("rate quantization step must be positive, have %g", p.LamQuant))
	}
	return nil
}

// Denoises a gradient field with non-local means weighted by the L2
// distance between Poisson distributions. Both channels must be 2D arrays
// of identical shape with the given line width. Returns freshly allocated
// output channels of the same shape, and the scale that maps gradient
// magnitude onto the Poisson count domain. Pixels whose similarity patch
// would extend outside the grid pass through unchanged
func Filter(c *Context, gx, gy []float32, width int, p Params) (outGx, outGy []float32, scale float64, err error) {
	height, err:=validateShape(gx, gy, width)
	if err!=nil { return nil, nil, 0, err }
	err=validateParams(p)
	if err!=nil { return nil, nil, 0, err }

	fmt.Fprintf(c.Log, "Filtering %dx%d gradient field with search radius %d patch radius %d rho %g topk %d on %d threads, %d MB physical memory\n",
	            width, height, p.SearchRadius, p.PatchRadius, p.Rho, p.TopK, c.MaxThreads, c.MemoryMB)

	// map gradient magnitudes onto the Poisson count domain
	lam:=make([]float32, len(gx))
	scale=autoScale(c, gx, gy, p.CountTargetMean, lam)
	fmt.Fprintf(c.Log, "Count scale %.6g targets mean rate %g\n", scale, p.CountTargetMean)

	// local rate estimate: box mean over the patch window
	lamHat:=make([]float32, len(gx))
	boxMeanMap(c, lam, width, p.PatchRadius, lamHat)

	outGx=make([]float32, len(gx))
	outGy=make([]float32, len(gy))

	e:=&engine{
		c     : c,
		p     : p,
		gx    : gx,
		gy    : gy,
		lamHat: lamHat,
		width : width,
		height: height,
		cache : pdist.CacheForStep(p.LamQuant),
	}
	e.run(outGx, outGy)

	copyBorders(outGx, gx, width, height, p.PatchRadius)
	copyBorders(outGy, gy, width, height, p.PatchRadius)

	fmt.Fprintf(c.Log, "Distance cache holds %d rate pairs after filtering\n", e.cache.Len())
	return outGx, outGy, scale, nil
}

// Working set of one filter invocation. All fields are read-only while the
// row goroutines run; the only shared mutable state is the distance cache
type engine struct {
	c      *Context
	p      Params
	gx, gy []float32
	lamHat []float32
	width  int
	height int
	cache  *pdist.Cache
}

// Filters all interior pixels, i.e. those with a full patch inside the
// grid, into outGx and outGy. Row batches run in parallel; candidate and
// weight scratch stays local to each goroutine
func (e *engine) run(outGx, outGy []float32) {
	pr:=e.p.PatchRadius
	loRow, hiRow:=pr, e.height-pr
	if hiRow<=loRow || e.width<=2*pr { return }

	// split into 8*MaxThreads row batches, limit parallelism to MaxThreads
	numBatches:=8*e.c.MaxThreads
	batchSize :=(hiRow-loRow+numBatches-1)/(numBatches)
	if batchSize<1 { batchSize=1 }
	sem       :=make(chan bool, e.c.MaxThreads)
	for lower:=loRow; lower<hiRow; lower+=batchSize {
		upper:=lower+batchSize
		if upper>hiRow { upper=hiRow }

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()

			winSize:=2*e.p.SearchRadius+1
			cands  :=make([]qsort.Candidate, 0, winSize*winSize)
			ws     :=make([]float64, winSize*winSize)
			for y:=lower; y<upper; y++ {
				for x:=pr; x<e.width-pr; x++ {
					e.filterPixel(y, x, cands, ws, outGx, outGy)
				}
			}
		}(lower, upper)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}

// Computes the retained candidates for the interior pixel (x,y) along with
// their unnormalized weights in matching order and the weight sum. If every
// weight underflows to zero, falls back to uniform weights over the
// retained candidates, so the returned sum is always positive
func (e *engine) pixelWeights(y, x int, cands []qsort.Candidate, ws []float64) ([]qsort.Candidate, []float64, float64) {
	pr, sr:=e.p.PatchRadius, e.p.SearchRadius

	// two-stage smoothing: box mean of the already box-filtered rates
	// stabilizes the weighting temperature in low-count regions
	lamBar:=patchMean(e.lamHat, e.width, x, y, pr)
	denom :=e.p.Rho*math.Max(lamBar, lamFloor)

	// search window, restricted so candidates have full patches as well
	sy0:=y-sr
	if sy0<pr { sy0=pr }
	sy1:=y+sr+1
	if sy1>e.height-pr { sy1=e.height-pr }
	sx0:=x-sr
	if sx0<pr { sx0=pr }
	sx1:=x+sr+1
	if sx1>e.width-pr { sx1=e.width-pr }

	cands=cands[:0]
	for yy:=sy0; yy<sy1; yy++ {
		for xx:=sx0; xx<sx1; xx++ {
			// patch distance: sum of per-pixel Poisson distances across both patches
			d:=float64(0)
			for j:=-pr; j<=pr; j++ {
				rowX:=(y +j)*e.width + x
				rowY:=(yy+j)*e.width + xx
				for i:=-pr; i<=pr; i++ {
					d+=e.cache.Query(float64(e.lamHat[rowX+i]), float64(e.lamHat[rowY+i]))
				}
			}
			cands=append(cands, qsort.Candidate{Dist: float32(d), Index: int32(yy*e.width+xx)})
		}
	}

	if e.p.TopK>0 && len(cands)>e.p.TopK {
		qsort.QSelectCandidates(cands, e.p.TopK)
		cands=cands[:e.p.TopK]
	}

	wsum:=float64(0)
	for i:=range cands {
		w:=math.Exp(-float64(cands[i].Dist)/denom)
		ws[i]=w
		wsum+=w
	}
	if wsum<=0 {  // all weights underflowed, average retained candidates uniformly
		for i:=range cands {
			ws[i]=1
		}
		wsum=float64(len(cands))
	}
	return cands, ws[:len(cands)], wsum
}

// Replaces the pixel (x,y) in both output channels with the weighted
// average of its retained candidates
func (e *engine) filterPixel(y, x int, cands []qsort.Candidate, ws []float64, outGx, outGy []float32) {
	cands, ws, wsum:=e.pixelWeights(y, x, cands, ws)

	gxv, gyv:=float64(0), float64(0)
	for i, cand:=range cands {
		w:=ws[i]/wsum
		gxv+=w*float64(e.gx[cand.Index])
		gyv+=w*float64(e.gy[cand.Index])
	}
	outGx[y*e.width+x]=float32(gxv)
	outGy[y*e.width+x]=float32(gyv)
}

// Copies the margin of the given radius on every side from in to out
// unchanged. These are the pixels where a full patch cannot be centered
func copyBorders(out, in []float32, width, height, radius int) {
	if radius<=0 { return }

	top:=radius
	if top>height { top=height }
	copy(out[:top*width], in[:top*width])                  // first rows

	bottom:=height-radius
	if bottom<top { bottom=top }
	copy(out[bottom*width:], in[bottom*width:])            // last rows

	left:=radius
	if left>width { left=width }
	right:=width-radius
	if right<left { right=left }
	for y:=top; y<bottom; y++ {
		row:=y*width
		copy(out[row:row+left], in[row:row+left])          // first columns
		copy(out[row+right:row+width], in[row+right:row+width]) // last columns
	}
}
