// Package rpm implements RPM version ordering and dependency range overlap.
//
// The comparison rules follow rpmvercmp from librpm: versions are split into
// alternating digit and letter segments, separators are ignored, digit
// segments compare numerically and always beat letter segments, '~' sorts
// before everything (pre-releases) and '^' sorts after the base version but
// before any further segment (post-release snapshots).
package rpm

// Vercmp compares two version strings segment by segment.
//
// Returns:
//   - -1 if a is older than b
//   - 0 if they are equal
//   - 1 if a is newer than b
//
// Example:
//
//	Vercmp("1.0~rc1", "1.0") // -1
//	Vercmp("5.5p10", "5.5p1") // 1
func Vercmp(a, b string) int {
	if a == b {
		return 0
	}

	i, j := 0, 0

	for i < len(a) || j < len(b) {
		for i < len(a) && !isAlnum(a[i]) && a[i] != '~' && a[i] != '^' {
			i++
		}

		for j < len(b) && !isAlnum(b[j]) && b[j] != '~' && b[j] != '^' {
			j++
		}

		// Tilde sorts before everything else, including the end of the string.
		if at(a, i) == '~' || at(b, j) == '~' {
			if at(a, i) != '~' {
				return 1
			}

			if at(b, j) != '~' {
				return -1
			}

			i++
			j++

			continue
		}

		// Caret sorts after the end of the string but before any other segment.
		if at(a, i) == '^' || at(b, j) == '^' {
			if i >= len(a) {
				return -1
			}

			if j >= len(b) {
				return 1
			}

			if a[i] != '^' {
				return 1
			}

			if b[j] != '^' {
				return -1
			}

			i++
			j++

			continue
		}

		if i >= len(a) || j >= len(b) {
			break
		}

		segA, segB := i, j
		numeric := isDigit(a[i])

		if numeric {
			for i < len(a) && isDigit(a[i]) {
				i++
			}

			for j < len(b) && isDigit(b[j]) {
				j++
			}
		} else {
			for i < len(a) && isAlpha(a[i]) {
				i++
			}

			for j < len(b) && isAlpha(b[j]) {
				j++
			}
		}

		// Segments of different types: numeric wins over alpha.
		if segB == j {
			if numeric {
				return 1
			}

			return -1
		}

		if rc := compareSegment(a[segA:i], b[segB:j], numeric); rc != 0 {
			return rc
		}
	}

	if i >= len(a) && j >= len(b) {
		return 0
	}

	if i < len(a) {
		return 1
	}

	return -1
}

func compareSegment(x, y string, numeric bool) int {
	if numeric {
		x = trimZeros(x)
		y = trimZeros(y)

		if len(x) > len(y) {
			return 1
		}

		if len(y) > len(x) {
			return -1
		}
	}

	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func trimZeros(s string) string {
	for len(s) > 0 && s[0] == '0' {
		s = s[1:]
	}

	return s
}

// at returns the byte at position i, or 0 past the end of s.
func at(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}

	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlnum(c byte) bool {
	return isDigit(c) || isAlpha(c)
}
