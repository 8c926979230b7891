// Package match reconciles differently-spelled run identifiers across
// data sources using edit-distance similarity.
package match

// Threshold is the maximum edit distance at which two run identifiers
// are considered the same run. Run names are highly structured
// alphanumeric strings, so two edits reliably discriminate distinct runs.
const Threshold = 2

// Distance returns the Levenshtein edit distance between a and b.
// The strings do not have to be of equal length.
func Distance(a, b string) int {
	if a == b {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}

	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i

		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Closest finds the registry key matching candidate within Threshold
// edits. Keys are checked in the given order and the last key within
// the threshold wins, mirroring how the registry has always resolved
// ambiguous names. Returns the matched key, its distance and whether
// any key matched.
func Closest(candidate string, keys []string) (string, int, bool) {
	var (
		matched  string
		distance int
		found    bool
	)

	for _, key := range keys {
		d := Distance(candidate, key)
		if d <= Threshold {
			matched = key
			distance = d
			found = true
		}
	}

	return matched, distance, found
}
