package scalar

import (
	"cmp"
	"slices"
)

const insertionSortMax = 12

// sortByValue sorts keys by (values[key], key) with a three-way quicksort.
// Runs of equal values are gathered in one partition step and then ordered
// by key, so inputs with few distinct values sort in near-linear time.
func sortByValue[K Key, V Value](keys []K, values []V) {
	for len(keys) > insertionSortMax {
		lt, gt := partition3(keys, values)
		slices.Sort(keys[lt:gt])

		// Recurse into the smaller side, loop on the larger.
		if lt < len(keys)-gt {
			sortByValue(keys[:lt], values)
			keys = keys[gt:]
		} else {
			sortByValue(keys[gt:], values)
			keys = keys[:lt]
		}
	}
	insertionSort(keys, values)
}

// partition3 rearranges keys into values below, equal to and above a pivot
// and returns the bounds [lt, gt) of the equal run.
func partition3[K Key, V Value](keys []K, values []V) (lt, gt int) {
	pivot := values[medianOfThree(keys, values)]

	i := 0
	lt, gt = 0, len(keys)
	for i < gt {
		switch cmp.Compare(values[keys[i]], pivot) {
		case -1:
			keys[lt], keys[i] = keys[i], keys[lt]
			lt++
			i++
		case 1:
			gt--
			keys[i], keys[gt] = keys[gt], keys[i]
		default:
			i++
		}
	}
	return lt, gt
}

func medianOfThree[K Key, V Value](keys []K, values []V) K {
	a, b, c := keys[0], keys[len(keys)/2], keys[len(keys)-1]
	va, vb, vc := values[a], values[b], values[c]
	if cmp.Less(vb, va) {
		a, b = b, a
		va, vb = vb, va
	}
	if cmp.Less(vc, vb) {
		b, vb = c, vc
		if cmp.Less(vb, va) {
			b = a
		}
	}
	return b
}

func insertionSort[K Key, V Value](keys []K, values []V) {
	for i := 1; i < len(keys); i++ {
		k := keys[i]
		v := values[k]
		j := i
		for ; j > 0; j-- {
			p := keys[j-1]
			c := cmp.Compare(values[p], v)
			if c < 0 || (c == 0 && p < k) {
				break
			}
			keys[j] = p
		}
		keys[j] = k
	}
}
