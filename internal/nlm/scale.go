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
	"sync"
)

// Threshold below which the mean gradient magnitude counts as zero
const epsMeanMag = 1e-12

// Maps gradient magnitude onto a Poisson count scale. Fills lam, which must
// have the same length as gx and gy, with max(0, magnitude*scale) where
// scale=targetMean/mean(magnitude), and returns scale. A degenerate field
// with mean magnitude below epsMeanMag falls back to scale 1 instead of
// blowing up the division. The magnitude sum reduces across goroutines;
// float32 magnitudes accumulate in float64, and summation order varies with
// the thread count, an accepted source of last-bit nondeterminism
func autoScale(c *Context, gx, gy []float32, targetMean float64, lam []float32) float64 {
	// split into 8*MaxThreads work packages, limit parallelism to MaxThreads
	numBatches:=8*c.MaxThreads
	batchSize :=(len(lam)+numBatches-1)/(numBatches)
	if batchSize<1 { batchSize=1 }
	sem       :=make(chan bool, c.MaxThreads)

	sumLock, sum:=sync.Mutex{}, float64(0)
	for lower:=0; lower<len(lam); lower+=batchSize {
		upper:=lower+batchSize
		if upper>len(lam) { upper=len(lam) }

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()

			s:=float64(0)
			for i:=lower; i<upper; i++ {
				m:=float32(math.Sqrt(float64(gx[i])*float64(gx[i]) + float64(gy[i])*float64(gy[i])))
				lam[i]=m
				s+=float64(m)
			}
			sumLock.Lock()
			sum+=s
			sumLock.Unlock()
		}(lower, upper)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}

	mean:=sum/float64(len(lam))
	scale:=1.0
	if mean>epsMeanMag {
		scale=targetMean/mean
	}

	s32:=float32(scale)
	for i, m:=range lam {
		v:=m*s32
		if v<0 { v=0 }
		lam[i]=v
	}
	return scale
}
