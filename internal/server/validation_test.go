package server

import (
	"strings"
	"testing"
)

func TestValidUsername(t *testing.T) {
	valid := []string{"alice", "bob", "charlie", "a", "user_1", "user.name", "user-name"}
	for _, u := range valid {
		if !ValidUsername(u) {
			t.Errorf("ValidUsername(%q) = false, want true", u)
		}
	}

	invalid := []string{"", "Alice", "user name", "../etc/passwd", "a@b", strings.Repeat("x", 65), "user\n"}
	for _, u := range invalid {
		if ValidUsername(u) {
			t.Errorf("ValidUsername(%q) = true, want false", u)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name", "report.pdf", "report.pdf"},
		{"path traversal", "../../etc/passwd", "_.._etc_passwd"},
		{"backslashes", `..\..\boot.ini`, "_.._boot.ini"},
		{"null bytes", "doc\x00.txt", "doc.txt"},
		{"header injection", "a\r\nContent-Type: text/html", "aContent-Type: text/html"},
		{"quotes", `"quoted".txt`, "_quoted_.txt"},
		{"leading dots", "...hidden", "hidden"},
		{"empty", "", "unnamed"},
		{"only dots", "...", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := SanitizeFilename(long)
	if len(got) > 255 {
		t.Fatalf("len = %d, want <= 255", len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Fatalf("extension lost: %q", got[len(got)-10:])
	}
}
