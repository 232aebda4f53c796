package docsearch

// Distance returns the Levenshtein distance between a and b counted in runes,
// with unit cost for insertion, deletion and substitution.
func Distance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) == 0 {
		return len(t)
	}
	if len(t) == 0 {
		return len(s)
	}
	matrix := make([][]int, len(s)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(t)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(t); j++ {
		matrix[0][j] = j
	}
	for i := 1; i <= len(s); i++ {
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}
	return matrix[len(s)][len(t)]
}

// within reports whether Distance(a, b) <= limit, skipping the matrix when the
// rune-length difference alone already exceeds limit.
func within(a, b string, limit int) bool {
	diff := runeLen(a) - runeLen(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > limit {
		return false
	}
	return Distance(a, b) <= limit
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
