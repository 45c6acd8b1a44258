package main

import (
	"reflect"
	"testing"
)

func TestSplitCSVFlag(t *testing.T) {
	cases := map[string][]string{
		"":              nil,
		"exe":           {"exe"},
		"exe, dll , bat": {"exe", "dll", "bat"},
		" , ,":          nil,
	}
	for in, want := range cases {
		got := splitCSVFlag(in)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("splitCSVFlag(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsVDIPath(t *testing.T) {
	if !isVDIPath("/images/suspect.vdi") {
		t.Errorf("expected .vdi path to be recognized")
	}
	if !isVDIPath("/images/SUSPECT.VDI") {
		t.Errorf("expected case-insensitive .vdi match")
	}
	if isVDIPath("/mnt/evidence") {
		t.Errorf("plain directory path should not be treated as a VDI")
	}
}
