package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"runrate/api/internal/store"
)

func TestProjectsCSV(t *testing.T) {
	firstContact := time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)
	lastActivity := time.Now()
	projects := []store.Project{
		{
			ID:           "proj-1",
			SupplierName: "Acme",
			PORef:        "PO-42",
			FirstContact: &firstContact,
			MainPOC:      "Kim",
			Region:       "EMEA",
			IsNPI:        "Yes",
			BusinessArea: "External",
			Status:       "In Progress",
			Quantities:   map[string]store.Quantity{"sensor": {Qty: 5}},
			LastActivity: &lastActivity,
		},
		{
			SupplierName: "Globex, Inc.",
			IsNPI:        "No",
			BusinessArea: "Internal",
		},
	}

	raw, err := ProjectsCSV(projects)
	if err != nil {
		t.Fatalf("ProjectsCSV() error = %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}

	header := strings.Join(records[0], ",")
	for _, excluded := range []string{"id", "quantities", "lastActivity"} {
		if strings.Contains(header, excluded) {
			t.Errorf("header must not contain %q: %s", excluded, header)
		}
	}

	first := records[1]
	if first[0] != "Acme" || first[2] != "2025-03-14" || first[5] != "Yes" {
		t.Fatalf("unexpected first row: %v", first)
	}

	second := records[2]
	if second[2] != "" {
		t.Fatalf("expected empty firstContact for dateless project, got %q", second[2])
	}
	if second[0] != "Globex, Inc." {
		t.Fatalf("expected comma-containing field to survive quoting, got %q", second[0])
	}
}

func TestProjectsCSVEmpty(t *testing.T) {
	raw, err := ProjectsCSV(nil)
	if err != nil {
		t.Fatalf("ProjectsCSV(nil) error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
}
