// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package cce

import "strings"

// Interleave zips a and b rune by rune, appending the remainder of the longer
// string once the shorter is exhausted.
func Interleave(a, b string) string {
	ra, rb := []rune(a), []rune(b)
	var sb strings.Builder
	sb.Grow(len(a) + len(b))
	for i := 0; i < len(ra) || i < len(rb); i++ {
		if i < len(ra) {
			sb.WriteRune(ra[i])
		}
		if i < len(rb) {
			sb.WriteRune(rb[i])
		}
	}
	return sb.String()
}

// DeriveSalts returns the two per-request salts for the decimal timestamp
// digits ts over the base alphabet. The digits are used exactly as sent.
func DeriveSalts(ts, base string) (saltA, saltB string) {
	return Interleave(ts, base), Interleave(base, ts)
}

// Sequence numbers header pairs: ascending from 1 when ts is odd, descending
// from total when ts is even.
func Sequence(index, total int, ts int64) int {
	if ts%2 != 0 {
		return index + 1
	}
	return total - index
}

// SaltOrder picks (keySalt, valueSalt) for the entry at index.
func SaltOrder(index int, saltA, saltB string) (keySalt, valSalt string) {
	if index%2 == 0 {
		return saltA, saltB
	}
	return saltB, saltA
}
