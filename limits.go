package relaypager

// MaxTake is the default page size ceiling. Absent or out-of-range page sizes
// fall back to it.
const MaxTake = 1000

// IsNormalizedTakeMax clamps take into [1, maxTake]. Unset (0), negative and
// oversized values yield maxTake. The second return value is false when take
// had to be replaced.
func IsNormalizedTakeMax(take int, maxTake int) (int, bool) {
	if take <= 0 || take > maxTake {
		return maxTake, false
	}

	return take, true
}

func NormalizeTakeMax(take int, maxTake int) int {
	ret, _ := IsNormalizedTakeMax(take, maxTake)
	return ret
}

func NormalizeTake(take int) int {
	return NormalizeTakeMax(take, MaxTake)
}

// NormalizeSkip clamps skip to be non-negative.
func NormalizeSkip(skip int) int {
	return max(skip, 0)
}
