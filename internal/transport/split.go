package transport

import "strings"

// SplitText cuts s into chunks of at most limit runes, preferring newline
// boundaries when the cut would not leave a tiny chunk.
func SplitText(s string, limit int) []string {
	rs := []rune(s)
	if limit <= 0 || len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
