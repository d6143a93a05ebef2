package autodj

import (
	"strconv"
	"strings"
)

// parseCamelot splits a Camelot key like "8A" into its wheel number and
// mode letter.
func parseCamelot(key string) (int, byte, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) < 2 {
		return 0, 0, false
	}
	letter := key[len(key)-1]
	if letter != 'A' && letter != 'B' {
		return 0, 0, false
	}
	num, err := strconv.Atoi(key[:len(key)-1])
	if err != nil || num < 1 || num > 12 {
		return 0, 0, false
	}
	return num, letter, true
}

// CompatibleKeys returns the harmonic neighbours of a Camelot key: the same
// number in the opposite mode, then the next and previous numbers in the
// same mode. The wheel wraps, so 12 neighbours 1.
func CompatibleKeys(key string) []string {
	num, letter, ok := parseCamelot(key)
	if !ok {
		return nil
	}
	other := byte('B')
	if letter == 'B' {
		other = 'A'
	}
	up := num%12 + 1
	down := num - 1
	if down == 0 {
		down = 12
	}
	return []string{
		strconv.Itoa(num) + string(other),
		strconv.Itoa(up) + string(letter),
		strconv.Itoa(down) + string(letter),
	}
}

// Compatible reports whether two Camelot keys mix harmonically. Identical
// keys always do; unparseable keys never do.
func Compatible(a, b string) bool {
	na, la, ok := parseCamelot(a)
	if !ok {
		return false
	}
	nb, lb, ok := parseCamelot(b)
	if !ok {
		return false
	}
	if na == nb && la == lb {
		return true
	}
	for _, k := range CompatibleKeys(a) {
		if nk, lk, _ := parseCamelot(k); nk == nb && lk == lb {
			return true
		}
	}
	return false
}
