package db

import (
	"strings"
	"testing"
)

func TestNilIfEmpty(t *testing.T) {
	if nilIfEmpty("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if nilIfEmpty("   ") != nil {
		t.Fatal("whitespace-only string should map to nil")
	}
	if v := nilIfEmpty("Yayasan TM"); v == nil || *v != "Yayasan TM" {
		t.Fatalf("expected pointer to original value, got %v", v)
	}
}

func TestSelectColsCoversScanTargets(t *testing.T) {
	// scanScholarship scans 17 destinations; the column list must match.
	cols := strings.Split(selectCols, ",")
	if len(cols) != 17 {
		t.Fatalf("selectCols has %d columns, scanScholarship expects 17", len(cols))
	}

	for _, required := range []string{"source_url", "deadline", "minimum_grade", "eligible_fields", "status"} {
		if !strings.Contains(selectCols, required) {
			t.Fatalf("selectCols missing %q", required)
		}
	}
}
