// Package reports keeps the outbreak report collection shown on the dashboard.
package reports

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"suraksha-jal/internal/flows"
)

type Source string

const (
	SourceAI           Source = "AI"
	SourceHealthWorker Source = "Health Worker"
	SourceCommunity    Source = "Community"
	SourceSystem       Source = "System"
)

type Report struct {
	ID       int64  `json:"id"`
	Disease  string `json:"disease"`
	Location string `json:"location"`
	Cases    int    `json:"cases"`
	Date     string `json:"date"`
	Source   Source `json:"source"`
}

func fromGenerated(g flows.GeneratedReport) Report {
	return Report{ID: g.ID, Disease: g.Disease, Location: g.Location, Cases: g.Cases, Date: g.Date, Source: Source(g.Source)}
}

func (r Report) generated() flows.GeneratedReport {
	return flows.GeneratedReport{ID: r.ID, Disease: r.Disease, Location: r.Location, Cases: r.Cases, Date: r.Date, Source: string(r.Source)}
}

// Merge concatenates the collections, keeps the first report per id and sorts
// the result. Earlier collections win on duplicate ids.
func Merge(collections ...[]Report) []Report {
	merged := lo.UniqBy(lo.Flatten(collections), func(r Report) int64 { return r.ID })
	Sort(merged)
	return merged
}

// Sort orders health worker reports first, then newest date first. Equal
// reports keep their relative order.
func Sort(reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		hi, hj := reports[i].Source == SourceHealthWorker, reports[j].Source == SourceHealthWorker
		if hi != hj {
			return hi
		}
		return reports[i].Date > reports[j].Date
	})
}

// Mock is the seeded community and system feed, dated relative to now.
func Mock(now time.Time) []Report {
	day := func(offset int) string { return now.AddDate(0, 0, -offset).Format(time.DateOnly) }
	return []Report{
		{ID: 1, Disease: "Cholera", Location: "Majuli, Assam", Cases: 12, Date: day(0), Source: SourceCommunity},
		{ID: 2, Disease: "Typhoid", Location: "Dimapur, Nagaland", Cases: 7, Date: day(1), Source: SourceSystem},
		{ID: 3, Disease: "Hepatitis A", Location: "Aizawl, Mizoram", Cases: 4, Date: day(2), Source: SourceCommunity},
		{ID: 4, Disease: "Diarrhoea", Location: "Silchar, Assam", Cases: 23, Date: day(3), Source: SourceSystem},
		{ID: 5, Disease: "Dysentery", Location: "Imphal West, Manipur", Cases: 9, Date: day(5), Source: SourceCommunity},
	}
}
