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
	"io"
	"runtime"
	"github.com/pbnjay/memory"
)

// An execution context for filter kernels
type Context struct {
	Log        io.Writer
	MemoryMB   int          // memory.TotalMemory()/1024/1024
	MaxThreads int          // worker goroutines for row-parallel kernels
}

// Creates an execution context logging to the given writer, or discarding
// output when nil. Worker count defaults to GOMAXPROCS
func NewContext(log io.Writer) *Context {
	if log==nil { log=io.Discard }
	return &Context{
		Log        : log,
		MemoryMB   : int(memory.TotalMemory()/1024/1024),
		MaxThreads : runtime.GOMAXPROCS(0),
	}
}
