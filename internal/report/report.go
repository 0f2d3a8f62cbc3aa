// Package report computes the summary-view aggregates from an in-memory
// project snapshot. Every function is pure and tolerates missing or malformed
// fields: a record without a usable value contributes zero and never raises an
// error.
package report

import (
	"fmt"

	"runrate/api/internal/store"
)

// SensorsByRegion sums quantities["sensor"].Qty grouped by region.
func SensorsByRegion(projects []store.Project) map[string]int {
	totals := make(map[string]int)
	for _, p := range projects {
		if p.Region == "" {
			continue
		}
		totals[p.Region] += p.Quantities["sensor"].Qty
	}
	return totals
}

func StatusCounts(projects []store.Project) map[string]int {
	counts := make(map[string]int)
	for _, p := range projects {
		if p.Status == "" {
			continue
		}
		counts[p.Status]++
	}
	return counts
}

func POCCounts(projects []store.Project) map[string]int {
	counts := make(map[string]int)
	for _, p := range projects {
		if p.MainPOC == "" {
			continue
		}
		counts[p.MainPOC]++
	}
	return counts
}

// ProjectsByQuarter counts projects by the quarter of their first contact,
// keyed "YYYY Qn". Records without a first-contact date are skipped.
func ProjectsByQuarter(projects []store.Project) map[string]int {
	counts := make(map[string]int)
	for _, p := range projects {
		if p.FirstContact == nil {
			continue
		}
		quarter := (int(p.FirstContact.Month())-1)/3 + 1
		counts[fmt.Sprintf("%d Q%d", p.FirstContact.Year(), quarter)]++
	}
	return counts
}
