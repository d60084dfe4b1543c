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


package gradnlm

import (
	"runtime"
	"github.com/klauspost/cpuid"
)

// Informational calls only: none of these affect filter output values,
// just wall-clock performance.

// Reports whether the filter will distribute row batches across more than
// one worker goroutine
func MultithreadingAvailable() bool {
	return NumThreads()>1
}

// Returns the number of worker goroutines the filter kernels run with,
// following GOMAXPROCS
func NumThreads() int {
	return runtime.GOMAXPROCS(0)
}

// Returns the logical and physical CPU core counts as detected via cpuid.
// Either may be 0 on platforms where detection fails
func CPUCores() (logical, physical int) {
	return cpuid.CPU.LogicalCores, cpuid.CPU.PhysicalCores
}
