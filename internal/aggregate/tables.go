package aggregate

import (
	"sort"
	"strings"

	"esgrag/internal/domain"
)

// assuranceMarker flags externally assured values in a record's notes.
const assuranceMarker = "(A)"

// BuildKpiTables groups records into one table per (metric, unit), in first-seen order.
// The first record of a group sets its category and source. Values are sorted by year
// label with plain string comparison, which is only correct for fixed-width labels
// that do not wrap a century ("00/01" sorts before "99/00").
func BuildKpiTables(records []domain.KpiRecord) []domain.KpiTable {
	var order []string
	groups := make(map[string]*domain.KpiTable)

	for _, rec := range records {
		key := rec.Metric + "|" + rec.Unit
		table, ok := groups[key]
		if !ok {
			table = &domain.KpiTable{
				Category: rec.Category,
				Metric:   rec.Metric,
				Unit:     rec.Unit,
				Values:   []domain.KpiValue{},
				Source:   rec.Source,
			}
			groups[key] = table
			order = append(order, key)
		}
		table.Values = append(table.Values, domain.KpiValue{
			Year:    rec.Year,
			Value:   rec.Value,
			Assured: strings.Contains(rec.Notes, assuranceMarker),
		})
	}

	tables := make([]domain.KpiTable, 0, len(order))
	for _, key := range order {
		table := groups[key]
		sort.SliceStable(table.Values, func(i, j int) bool {
			return table.Values[i].Year < table.Values[j].Year
		})
		tables = append(tables, *table)
	}
	return tables
}
