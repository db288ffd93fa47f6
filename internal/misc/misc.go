package misc

import (
	"unicode/utf8"

	"golang.org/x/exp/constraints"
)

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// StringLimit truncates s to at most n bytes, marking the cut with "...".
// The cut never splits a multi-byte rune.
func StringLimit(s string, n int) string {
	if n < 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:runeBoundary(s, n)]
	}
	return s[:runeBoundary(s, n-3)] + "..."
}

func runeBoundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func BytesLimit(bs []byte, n int) []byte {
	if n < 0 {
		return nil
	}
	if n <= 3 {
		return bs[:Min(n, len(bs))]
	}
	if len(bs) > n {
		out := make([]byte, 0, n)
		out = append(out, bs[:n-3]...)
		return append(out, "..."...)
	}
	return bs
}

func IsNum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
