// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mp implements the shuffle-then-shard worker pool model used by
// coverage ingestion: files are shuffled with a fixed seed, split into
// balanced shards, and processed by goroutine workers with no shared
// mutable state. Results flow back only through return values.
package mp

import (
	"math/rand"
	"runtime"
)

// FixedSeed is the deterministic seed used to shuffle file lists before
// sharding, so shard assignment is reproducible across runs on the same
// input set.
const FixedSeed = 42

// CPUCount returns a process count suitable for sharding work, defaulting to
// the number of logical CPUs.
func CPUCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// ShuffleStable shuffles items in place using FixedSeed so repeated runs over
// the same slice produce the same shard assignment regardless of call order.
func ShuffleStable[T any](items []T) {
	r := rand.New(rand.NewSource(FixedSeed))
	r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Split divides items into numShards balanced chunks, consuming remaining
// length/remaining-shard-count iteratively so earlier shards never get more
// than one extra item over later ones. Mirrors the original's array_split.
func Split[T any](items []T, numShards int) [][]T {
	if numShards < 1 {
		numShards = 1
	}
	shards := make([][]T, 0, numShards)
	remaining := items
	for shardsLeft := numShards; shardsLeft > 0 && len(remaining) > 0; shardsLeft-- {
		size := (len(remaining) + shardsLeft - 1) / shardsLeft
		shards = append(shards, remaining[:size])
		remaining = remaining[size:]
	}
	return shards
}

// Result pairs a shard's output with any error encountered while processing
// it. A failed shard's contribution is omitted by the caller rather than
// aborting the whole run (per the worker-exception policy).
type Result[R any] struct {
	Value R
	Err   error
}

// Run shards items (after a stable shuffle), processes each shard
// concurrently with fn, and returns one Result per shard in shard order. fn
// must not mutate shared state; workers exchange only the values they
// return.
func Run[T any, R any](items []T, numShards int, fn func(shard []T) (R, error)) []Result[R] {
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	ShuffleStable(shuffled)

	shards := Split(shuffled, numShards)
	results := make([]Result[R], len(shards))

	done := make(chan int, len(shards))
	for i, shard := range shards {
		go func(idx int, s []T) {
			v, err := fn(s)
			results[idx] = Result[R]{Value: v, Err: err}
			done <- idx
		}(i, shard)
	}
	for range shards {
		<-done
	}
	return results
}
