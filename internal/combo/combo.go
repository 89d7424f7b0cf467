// Package combo enumerates subsets and assignments lazily by advancing an
// index or value slice in place. Each Next* call returns false once the
// sequence is exhausted; re-seed the slice to start over.
package combo

// NextCombination advances list, a k-combination of possible, to the
// lexicographically next k-combination (ordered by position in possible).
// Values are assumed unique. Returns false when list already holds the last
// k values of possible.
func NextCombination[T comparable](list, possible []T) bool {
	k, n := len(list), len(possible)
	if k == 0 || k > n {
		return false
	}
	for i := k - 1; i >= 0; i-- {
		if list[i] == possible[n-k+i] {
			continue
		}
		j := indexOf(possible, list[i])
		if j < 0 {
			return false
		}
		for m := 0; i+m < k; m++ {
			list[i+m] = possible[j+1+m]
		}
		return true
	}
	return false
}

// NextFactorial walks every combination of size 1..max. When the current size
// is exhausted list is reset to the first combination of the next size.
// max <= 0 or above len(possible) means len(possible).
func NextFactorial[T comparable](list *[]T, possible []T, max int) bool {
	if max <= 0 || max > len(possible) {
		max = len(possible)
	}
	if NextCombination(*list, possible) {
		return true
	}
	size := len(*list) + 1
	if size > max {
		return false
	}
	next := make([]T, size)
	copy(next, possible[:size])
	*list = next
	return true
}

// NextGrayCode treats list as a mixed-radix counter whose digits each run
// 0..max, least significant digit first. Returns false on overflow of the
// most significant digit, leaving every digit at zero.
func NextGrayCode(list []int, max int) bool {
	for i := range list {
		list[i]++
		if list[i] <= max {
			return true
		}
		list[i] = 0
	}
	return false
}

// Count returns the binomial coefficient C(n, k).
func Count(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	c := 1
	for i := 1; i <= k; i++ {
		c = c * (n - k + i) / i
	}
	return c
}

// Indices returns 0..n-1, the usual seed universe for index combinations.
func Indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func indexOf[T comparable](s []T, v T) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
