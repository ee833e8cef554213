package core

import (
	"testing"
	"time"
)

func TestImportTableName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := ImportTableName(ts); got != "insurance_policies_20240102030405" {
		t.Errorf("ImportTableName = %q", got)
	}
}

func TestIsImportTable(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"insurance_policies_20240102030405", true},
		{"main_insurance_policies", false},
		{"insurance_policies_2024", false},
		{"insurance_policies_2024010203040x", false},
		{"insurance_policies_202401020304056", false},
		{"sqlite_sequence", false},
	}
	for _, tt := range tests {
		if got := IsImportTable(tt.name); got != tt.want {
			t.Errorf("IsImportTable(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
