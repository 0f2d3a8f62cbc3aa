// Package export renders the filtered project view as a flat CSV table for
// download. Identity, the quantities map, and the activity timestamp are
// deliberately excluded.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"runrate/api/internal/store"
)

var csvHeader = []string{
	"supplierName",
	"poRef",
	"firstContact",
	"mainPoc",
	"region",
	"isNPI",
	"businessArea",
	"status",
}

// ProjectsCSV writes one row per project in the given order.
func ProjectsCSV(projects []store.Project) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range projects {
		firstContact := ""
		if p.FirstContact != nil {
			firstContact = p.FirstContact.Format("2006-01-02")
		}
		row := []string{
			p.SupplierName,
			p.PORef,
			firstContact,
			p.MainPOC,
			p.Region,
			p.IsNPI,
			p.BusinessArea,
			p.Status,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
