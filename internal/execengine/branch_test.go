package execengine

import (
	"regexp"
	"testing"
	"time"
)

func TestDeriveBranchNameFormat(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	name := deriveBranchName("oac", "Fix The Thing!!", "abcd1234ef", 2, now)

	want := "oac/20260305/fix-the-thing-abcd1234-a2"
	if name != want {
		t.Fatalf("deriveBranchName = %q, want %q", name, want)
	}
}

func TestDeriveBranchNameMatchesInvariantPattern(t *testing.T) {
	pattern := regexp.MustCompile(`^oac/[0-9]{8}/[a-z0-9/_-]+-[0-9a-f]{8}-a[0-9]+$`)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	name := deriveBranchName("oac", "weird///Task--ID!!", "0123456789abcdef", 1, now)
	if !pattern.MatchString(name) {
		t.Fatalf("branch name %q does not match invariant pattern", name)
	}
}

func TestSanitizeTaskIDDefaultsWhenEmpty(t *testing.T) {
	if got := sanitizeTaskID("!!!"); got != "task" {
		t.Fatalf("sanitizeTaskID(%q) = %q, want %q", "!!!", got, "task")
	}
}

func TestSanitizeTaskIDCollapsesAndTrims(t *testing.T) {
	got := sanitizeTaskID("--Foo__Bar--")
	if got != "foo__bar" {
		t.Fatalf("sanitizeTaskID = %q, want %q", got, "foo__bar")
	}
}
