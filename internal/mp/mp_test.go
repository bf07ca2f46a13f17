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

package mp

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShuffleStable_DeterministicAcrossCalls(t *testing.T) {
	a := []int{1, 2, 3, 4, 5, 6, 7, 8}
	b := []int{1, 2, 3, 4, 5, 6, 7, 8}

	ShuffleStable(a)
	ShuffleStable(b)

	assert.Equal(t, a, b)
}

func TestSplit_BalancesSizesWithinOne(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	shards := Split(items, 3)

	require := func(cond bool) {
		if !cond {
			t.Fatalf("shard sizes not balanced: %v", shards)
		}
	}
	min, max := len(shards[0]), len(shards[0])
	total := 0
	for _, s := range shards {
		if len(s) < min {
			min = len(s)
		}
		if len(s) > max {
			max = len(s)
		}
		total += len(s)
	}
	require(max-min <= 1)
	assert.Equal(t, len(items), total)
}

func TestSplit_FewerItemsThanShardsYieldsFewerShards(t *testing.T) {
	shards := Split([]int{1, 2}, 5)
	assert.Len(t, shards, 2)
}

func TestRun_ProcessesEveryItemAcrossShards(t *testing.T) {
	items := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, i)
	}

	results := Run(items, 4, func(shard []int) ([]int, error) {
		out := make([]int, len(shard))
		for i, v := range shard {
			out[i] = v * 2
		}
		return out, nil
	})

	var got []int
	for _, r := range results {
		assert.NoError(t, r.Err)
		got = append(got, r.Value...)
	}
	sort.Ints(got)

	want := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		want = append(want, i*2)
	}
	assert.Equal(t, want, got)
}

func TestRun_PropagatesPerShardErrorsWithoutAbortingOthers(t *testing.T) {
	items := []int{1, 2, 3, 4}
	results := Run(items, 2, func(shard []int) (int, error) {
		for _, v := range shard {
			if v == 3 {
				return 0, fmt.Errorf("bad item %d", v)
			}
		}
		sum := 0
		for _, v := range shard {
			sum += v
		}
		return sum, nil
	})

	var errCount, okCount int
	for _, r := range results {
		if r.Err != nil {
			errCount++
		} else {
			okCount++
		}
	}
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 1, okCount)
}
