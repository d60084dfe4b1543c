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
	"sync"
)

// Memoizes PoissonL2Distance over rate pairs quantized to a fixed step.
// Rates are keyed as round(rate/step) integers, never as floats, so key
// equality is stable across platforms. Lookups take a brief read lock;
// misses compute outside any lock and then insert. Concurrent goroutines
// may compute the same entry twice, which inserts the same value twice
// and is harmless. Entries are never evicted.
type Cache struct {
	step float64
	lock sync.RWMutex
	m    map[uint64]float64
}

// Creates an empty distance cache with the given quantization step
func NewCache(step float64) *Cache {
	return &Cache{step: step, m: make(map[uint64]float64)}
}

// Returns the quantization step of this cache
func (c *Cache) Step() float64 { return c.step }

// Returns the number of memoized rate pairs
func (c *Cache) Len() int {
	c.lock.RLock()
	l:=len(c.m)
	c.lock.RUnlock()
	return l
}

// Returns the squared L2 Poisson distance between rates lx and ly, both
// quantized to the nearest multiple of the cache step. The distance is
// symmetric, so keys are canonicalized with the smaller quantized rate
// first. Safe for concurrent use from multiple goroutines
func (c *Cache) Query(lx, ly float64) float64 {
	qx:=int64(math.Round(lx/c.step))
	qy:=int64(math.Round(ly/c.step))
	if qx<0 { qx=0 }
	if qy<0 { qy=0 }
	if qx>qy { qx, qy = qy, qx }
	key:=uint64(qx)<<32 | uint64(qy)

	c.lock.RLock()
	d, ok:=c.m[key]
	c.lock.RUnlock()
	if ok { return d }

	d=PoissonL2Distance(float64(qx)*c.step, float64(qy)*c.step)
	c.lock.Lock()
	c.m[key]=d
	c.lock.Unlock()
	return d
}


// Process-wide caches, one per quantization step, lazily created and never evicted
var caches=struct{
	sync.RWMutex
	m map[uint64]*Cache
}{m: make(map[uint64]*Cache)}

// Returns the process-wide distance cache for the given quantization step
func CacheForStep(step float64) *Cache {
	bits:=math.Float64bits(step)
	caches.RLock()
	c:=caches.m[bits]
	caches.RUnlock()
	if c==nil {
		c=NewCache(step)
		caches.Lock()
		caches.m[bits]=c
		caches.Unlock()
	}
	return c
}
