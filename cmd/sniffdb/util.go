package main

import (
	"fmt"
	"os"
	"strings"
)

// drainErrors consumes per-item scan/ingest errors and writes them to
// stderr as they arrive, instead of collecting them until the scan ends.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// splitCSVFlag splits a comma-separated flag value into its trimmed,
// non-empty parts.
func splitCSVFlag(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// isVDIPath heuristically identifies a virtual-disk image source by
// extension, so create-snapshot knows whether to mount it first.
func isVDIPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".vdi")
}
