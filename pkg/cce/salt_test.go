// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package cce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterleave(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"123", "abc", "1a2b3c"},
		{"12345", "ab", "1a2b345"},
		{"ab", "12345", "a1b2345"},
		{"", "abc", "abc"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interleave(tt.a, tt.b))
	}
}

func TestDeriveSalts(t *testing.T) {
	a, b := DeriveSalts("123", "abcdef")
	assert.Equal(t, "1a2b3cdef", a)
	assert.Equal(t, "a1b2c3def", b)
}

func TestSequence(t *testing.T) {
	// odd timestamp: ascending
	assert.Equal(t, 1, Sequence(0, 5, 1717000000001))
	assert.Equal(t, 5, Sequence(4, 5, 1717000000001))
	// even timestamp: descending
	assert.Equal(t, 5, Sequence(0, 5, 1717000000000))
	assert.Equal(t, 1, Sequence(4, 5, 1717000000000))
}

func TestSaltOrder(t *testing.T) {
	k, v := SaltOrder(0, "A", "B")
	assert.Equal(t, []string{"A", "B"}, []string{k, v})
	k, v = SaltOrder(1, "A", "B")
	assert.Equal(t, []string{"B", "A"}, []string{k, v})
	k, v = SaltOrder(2, "A", "B")
	assert.Equal(t, []string{"A", "B"}, []string{k, v})
}
