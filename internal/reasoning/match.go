package reasoning

import "unicode/utf8"

// Markers are ASCII, so folding is done byte-wise. strings.ToLower would be
// wrong here: it can change the byte length of non-ASCII text and shift every
// offset after it.

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// hasPrefixFold reports whether s begins with prefix, ignoring ASCII case.
func hasPrefixFold(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lowerASCII(s[i]) != lowerASCII(prefix[i]) {
			return false
		}
	}
	return true
}

// indexFold returns the index of the first ASCII case-insensitive match of
// sub in s, or -1.
func indexFold(s, sub string) int {
	if sub == "" {
		return 0
	}
	first := lowerASCII(sub[0])
	for i := 0; i+len(sub) <= len(s); i++ {
		if lowerASCII(s[i]) != first {
			continue
		}
		if hasPrefixFold(s[i:], sub) {
			return i
		}
	}
	return -1
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// completeUTF8 returns the length of the longest prefix of p that does not
// end in the middle of a multi-byte sequence. Invalid bytes count as
// complete so they are never held forever.
func completeUTF8(p []byte) int {
	n := len(p)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return n
			}
			return i
		}
	}
	return n
}
