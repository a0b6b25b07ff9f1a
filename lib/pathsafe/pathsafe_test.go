// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package pathsafe

import "testing"

func TestSanitize(t *testing.T) {
	cases := []struct {
		dirty string
		want  string
	}{
		{"etc/passwd", "etc/passwd"},
		{"/etc/passwd", "etc/passwd"},
		{"/usr/../src/./lib.rs", "usr/src/lib.rs"},
		{"../../etc/passwd", "etc/passwd"},
		{`C:\Windows\System32`, "Windows/System32"},
		{"", ""},
		{"..", ""},
		{"a//b", "a/b"},
	}
	for _, tc := range cases {
		got := Sanitize(tc.dirty)
		if got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.dirty, got, tc.want)
		}
	}
}
