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
)

// Smooths both gradient channels with a plain neighborhood average over the
// clipped search window. This is the predecessor of the Poisson-weighted
// kernel, kept as a cheap preview path. Every pixel is averaged, including
// the border, and the count scale is always 1
func FilterBox(c *Context, gx, gy []float32, width int, searchRadius int) (outGx, outGy []float32, scale float64, err error) {
	height, err:=validateShape(gx, gy, width)
	if err!=nil { return nil, nil, 0, err }
	if searchRadius<0 {
		return nil, nil, 0, errors.New(fmt.Sprintf("search radius must be non-negative, have %d", searchRadius))
	}

	fmt.Fprintf(c.Log, "Box filtering %dx%d gradient field with search radius %d on %d threads\n",
	            width, height, searchRadius, c.MaxThreads)

	outGx=make([]float32, len(gx))
	outGy=make([]float32, len(gy))

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
				y0:=y-searchRadius
				if y0<0 { y0=0 }
				y1:=y+searchRadius+1
				if y1>height { y1=height }

				for x:=0; x<width; x++ {
					x0:=x-searchRadius
					if x0<0 { x0=0 }
					x1:=x+searchRadius+1
					if x1>width { x1=width }

					sumX, sumY:=float64(0), float64(0)
					for yy:=y0; yy<y1; yy++ {
						row:=yy*width
						for xx:=x0; xx<x1; xx++ {
							sumX+=float64(gx[row+xx])
							sumY+=float64(gy[row+xx])
						}
					}
					count:=float64((y1-y0)*(x1-x0))
					outGx[y*width+x]=float32(sumX/count)
					outGy[y*width+x]=float32(sumY/count)
				}
			}
		}(lowerRow, upperRow)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}

	return outGx, outGy, 1.0, nil
}
