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


// Package gradnlm denoises 2D vector gradient fields with a non-local
// means filter whose patch similarity is the L2 distance between Poisson
// distributions, exploiting the Poisson noise model of count-like data.
// Gradient channels are flat []float32 arrays in row-major order with an
// explicit line width, the most quickly varying dimension first.
package gradnlm

import (
	"io"
	"github.com/mlnoga/gradnlm/internal/nlm"
)

// Parameters for the Poisson non-local means gradient filter
type Params = nlm.Params

// Returns the default filter parameters of the reference pipeline:
// search radius 3, patch radius 1, rho 1.5, count target mean 30,
// rate quantization step 0.02, and top-k pruning disabled
func DefaultParams() Params { return nlm.DefaultParams() }

// Denoises the gradient field (gx, gy) with Poisson non-local means.
// Both channels must have identical positive 2D dimensions: len(gx) and
// len(gy) equal and a multiple of width. Returns freshly allocated output
// channels of the same shape and the scalar that maps observed gradient
// magnitude onto the Poisson count domain; callers can use the scale to
// invert the normalization. Pixels within the patch-radius margin pass
// through unchanged. Runs data-parallel across GOMAXPROCS goroutines
func Filter(gx, gy []float32, width int, p Params) (outGx, outGy []float32, scale float64, err error) {
	return nlm.Filter(nlm.NewContext(nil), gx, gy, width, p)
}

// Like Filter, and additionally reports progress and resource figures to
// the given log writer
func FilterLog(log io.Writer, gx, gy []float32, width int, p Params) (outGx, outGy []float32, scale float64, err error) {
	return nlm.Filter(nlm.NewContext(log), gx, gy, width, p)
}

// Smooths the gradient field (gx, gy) with a plain neighborhood average
// over the clipped search window. This is the first, similarity-blind
// version of the kernel, kept as a cheap preview path. Shape constraints
// match Filter; the returned scale is always 1
func FilterBox(gx, gy []float32, width int, searchRadius int) (outGx, outGy []float32, scale float64, err error) {
	return nlm.FilterBox(nlm.NewContext(nil), gx, gy, width, searchRadius)
}
