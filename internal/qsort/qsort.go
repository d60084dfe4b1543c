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


package qsort


// A filter candidate: the accumulated patch distance to the center pixel,
// and the flattened grid index of the candidate pixel
type Candidate struct {
    Dist  float32
    Index int32
}


// Sort an array of candidates in ascending order of distance.
// Distances must not contain IEEE NaN
func QSortCandidates(a []Candidate) {
    if len(a)>1 {
        index := QPartitionCandidates(a)
        QSortCandidates(a[:index+1])
        QSortCandidates(a[index+1:])
    }
}


// Partitions an array of candidates with the middle pivot element, and returns the pivot index.
// Candidates with distance less than the pivot are moved left of the pivot, those greater are moved right.
// Distances must not contain IEEE NaN
func QPartitionCandidates(a []Candidate) int {
    left, right:=0, len(a)-1
    mid   := (left+right)>>1
    pivot := a[mid].Dist
    l := left -1
    r := right+1
    for {
        for {
            l++
            if a[l].Dist>=pivot { break }
        }
        for {
            r--
            if a[r].Dist<=pivot { break }
        }
        if l >= r { return r }
        a[l], a[r] = a[r], a[l]
    }
}


// Moves the k candidates with the smallest distances into a[:k], in unspecified order.
// Partially reorders the array; ties are resolved arbitrarily. Expected linear cost.
// Distances must not contain IEEE NaN
func QSelectCandidates(a []Candidate, k int) {
    if k<=0 || k>=len(a) { return }
    left, right:=0, len(a)-1
    for left<right {
        // partition
        mid:=(left+right)>>1
        pivot := a[mid].Dist
        l, r  := left-1, right+1
        for {
            for {
                l++
                if a[l].Dist>=pivot { break }
            }
            for {
                r--
                if a[r].Dist<=pivot { break }
            }
            if l >= r { break } // index in r
            a[l], a[r] = a[r], a[l]
        }
        index:=r

        offset:=index-left+1
        if k<=offset {
            right=index
        } else {
            left=index+1
            k=k-offset
        }
    }
}
