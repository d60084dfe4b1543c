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


package pdist

import (
	"math"
)

// Floor for the truncation radius of near-zero rates
const epsRate = 1e-12

// Returns the squared L2 distance between two Poisson probability mass functions
// with rates lx and ly, i.e. the sum over all counts r of (p_lx(r)-p_ly(r))^2.
// The infinite sum is truncated six standard deviations beyond the larger rate,
// where the remaining tail mass is negligible. PMF values are generated with the
// stable recurrence p(0)=e^-lambda, p(r)=p(r-1)*lambda/r for both rates in lockstep.
// Pure and deterministic; returns exactly 0 if both rates are <=0
func PoissonL2Distance(lx, ly float64) float64 {
	lmax:=lx
	if ly>lmax { lmax=ly }
	if lmax<=0 { return 0 }

	rmax:=int(math.Ceil(lmax + 6.0*math.Sqrt(math.Max(lmax, epsRate))))
	px:=math.Exp(-lx)
	py:=math.Exp(-ly)
	d:=px-py
	sum:=d*d
	for r:=1; r<=rmax; r++ {
		px*=lx/float64(r)
		py*=ly/float64(r)
		d=px-py
		sum+=d*d
	}
	return sum
}
