package main

import (
	"testing"

	"github.com/aticu/sniffdb/internal/metadata"
)

func TestLeafName(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"a":               "a",
		"a/b":             "b",
		"a/b/c.exe":       "c.exe",
	}
	for in, want := range cases {
		if got := leafName(in); got != want {
			t.Errorf("leafName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkAncestorsCoversEveryPrefix(t *testing.T) {
	included := map[string]bool{}
	markAncestors(included, "a/b/c")

	for _, want := range []string{"a", "a/b", "a/b/c"} {
		if !included[want] {
			t.Errorf("expected %q to be marked included", want)
		}
	}
}

func TestMetadataDeltaReportsSizeChange(t *testing.T) {
	oldMeta := metadata.Metadata{Size: 10}
	newMeta := metadata.Metadata{Size: 20}

	got := metadataDelta(oldMeta, newMeta)
	if got != "(size 10 B->20 B)" {
		t.Errorf("metadataDelta = %q, want size delta rendered", got)
	}
}

func TestMetadataDeltaFallsBackWhenNothingComparable(t *testing.T) {
	oldMeta := metadata.Metadata{Size: 10}
	newMeta := metadata.Metadata{Size: 10}

	got := metadataDelta(oldMeta, newMeta)
	if got != "(metadata changed)" {
		t.Errorf("metadataDelta = %q, want fallback text", got)
	}
}
