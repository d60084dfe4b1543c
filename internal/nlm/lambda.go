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

// Floor applied to box-filtered rates, so downstream rate estimates stay positive
const lamFloor = 1e-8

// Box-filters the rate map lam into out with window size 2*radius+1,
// assuming both are 2D arrays with the given line width. Every pixel gets a
// value: windows are clipped at the grid edge, so border means are taken
// over smaller windows. This intentionally differs from the main filter
// loop, which skips border pixels outright; the smoothed map must cover the
// full grid so that full-size patches around interior pixels can read it.
// Row batches run in parallel, each writing a disjoint slice of out
func boxMeanMap(c *Context, lam []float32, width, radius int, out []float32) {
	height:=len(lam)/width

	// split into 8*MaxThreads row batches, limit parallelism to MaxThreads
	numBatches:=8*c.MaxThreads
	batchSize :=(height+numBatches-1)/(numBatches)
	if batchSize<1 { batchSize=1 }
	sem       :=make(chan bool, c.MaxThreads)
	for lowerRow:=0; lowerRow<height; lowerRow+=batchSize {
		upperRow:=lowerRow+batchSize
		if upperRow>height { upperRow=height }

		sem <- true
		go func(lowerRow, upperRow int) {
			defer func() { <-sem }()

			for y:=lowerRow; y<upperRow; y++ {
				y0:=y-radius
				if y0<0 { y0=0 }
				y1:=y+radius+1
				if y1>height { y1=height }

				for x:=0; x<width; x++ {
					x0:=x-radius
					if x0<0 { x0=0 }
					x1:=x+radius+1
					if x1>width { x1=width }

					sum:=float64(0)
					for yy:=y0; yy<y1; yy++ {
						row:=lam[yy*width : yy*width+width]
						for xx:=x0; xx<x1; xx++ {
							sum+=float64(row[xx])
						}
					}
					m:=float32(sum/float64((y1-y0)*(x1-x0)))
					if m<lamFloor { m=lamFloor }
					out[y*width+x]=m
				}
			}
		}(lowerRow, upperRow)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}

// Returns the mean of the smoothed rate map over the full patch centered at
// (x,y). The caller guarantees the patch lies inside the grid
func patchMean(lamHat []float32, width, x, y, radius int) float64 {
	sum:=float64(0)
	for yy:=y-radius; yy<=y+radius; yy++ {
		row:=lamHat[yy*width:]
		for xx:=x-radius; xx<=x+radius; xx++ {
			sum+=float64(row[xx])
		}
	}
	n:=2*radius+1
	return sum/float64(n*n)
}
