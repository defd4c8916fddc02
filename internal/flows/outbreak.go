package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

var (
	ReportSources = []string{"AI", "Health Worker", "Community", "System"}
	trends        = []string{"increasing", "stable", "decreasing"}
)

const maxGeneratedReports = 50

type GenerateReportsInput struct {
	Count    int     `json:"count"`
	Location *string `json:"location,omitempty"`
	Disease  *string `json:"disease,omitempty"`
}

// GeneratedReport is a report after stamping; ID and Date are never taken
// from the backend.
type GeneratedReport struct {
	ID       int64  `json:"id"`
	Disease  string `json:"disease"`
	Location string `json:"location"`
	Cases    int    `json:"cases"`
	Date     string `json:"date"`
	Source   string `json:"source"`
}

type generatedReports struct {
	Reports []struct {
		Disease  string `json:"disease"`
		Location string `json:"location"`
		Cases    int    `json:"cases"`
		Source   string `json:"source"`
	} `json:"reports"`
}

var reportsFlow = &Flow[GenerateReportsInput, generatedReports]{
	Name: "generateReports",
	Input: schema.Object("mock outbreak report request",
		schema.Required("count", schema.Integer("Number of reports to generate").Min(1).Max(maxGeneratedReports)),
		schema.Optional("location", schema.Text("Region the reports should be located in")),
		schema.Optional("disease", schema.Text("Disease the reports should focus on")),
	),
	Output: schema.Object("generated outbreak reports",
		schema.Required("reports", schema.ArrayOf("Outbreak reports", schema.Object("report",
			schema.Required("disease", schema.Text("Water-borne disease name, e.g. Cholera, Typhoid, Hepatitis A")),
			schema.Required("location", schema.Text("Village or town and district")),
			schema.Required("cases", schema.Integer("Number of reported cases").Min(1)),
			schema.Required("source", schema.Enum("Who reported it", ReportSources...)),
		)).Len(1, 0)),
	),
	Template: prompt.MustNew("generateReports", `Generate {{.Count}} realistic but fictional disease outbreak reports for a public health dashboard in North-East India.
{{- with .Location}}
All reports must be located in or around {{.}}.{{end}}
{{- with .Disease}}
Focus on {{.}}.{{end}}
Each report needs a water-borne disease, a location, a positive case count and a source.`),
}

// GenerateReports returns exactly in.Count reports. Report i is dated
// today-(i mod 7) days and gets id nowMillis+i.
func (s *Service) GenerateReports(ctx context.Context, in GenerateReportsInput) ([]GeneratedReport, error) {
	out, err := reportsFlow.Run(ctx, s.gen, in)
	if err != nil {
		return nil, err
	}
	if len(out.Reports) < in.Count {
		return nil, fmt.Errorf("%w: asked for %d reports, got %d", genai.ErrMalformedResult, in.Count, len(out.Reports))
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	base := now.UnixMilli()
	reports := make([]GeneratedReport, 0, in.Count)
	for i, r := range out.Reports[:in.Count] {
		reports = append(reports, GeneratedReport{
			ID:       base + int64(i),
			Disease:  r.Disease,
			Location: r.Location,
			Cases:    r.Cases,
			Date:     today.AddDate(0, 0, -(i % 7)).Format(time.DateOnly),
			Source:   r.Source,
		})
	}
	s.logger.Info("reports generated", "count", len(reports))
	return reports, nil
}

type OutbreakSummaryInput struct {
	Reports  []GeneratedReport `json:"reports"`
	Language *string           `json:"language,omitempty"`
}

type OutbreakInsight struct {
	Disease string `json:"disease"`
	Trend   string `json:"trend"`
	Summary string `json:"summary"`
}

type OutbreakSummaryOutput struct {
	Overview string            `json:"overview"`
	Insights []OutbreakInsight `json:"insights"`
}

var outbreakFlow = &Flow[OutbreakSummaryInput, OutbreakSummaryOutput]{
	Name: "summarizeOutbreaks",
	Input: schema.Object("outbreak summary request",
		schema.Required("reports", schema.ArrayOf("Reports to summarise", schema.Object("report",
			schema.Required("disease", schema.Text("disease")),
			schema.Required("location", schema.String("location")),
			schema.Required("cases", schema.Integer("cases").Min(1)),
			schema.Required("date", schema.Date("report date")),
			schema.Required("source", schema.Enum("source", ReportSources...)),
		)).Len(1, 0)),
		languageField(),
	),
	Output: schema.Object("outbreak trends",
		schema.Required("overview", schema.Text("Two or three sentence overview for health officials")),
		schema.Required("insights", schema.ArrayOf("One insight per disease", schema.Object("insight",
			schema.Required("disease", schema.Text("disease")),
			schema.Required("trend", schema.Enum("Direction of the case counts over the period", trends...)),
			schema.Required("summary", schema.String("What is happening and where")),
		))),
	),
	Template: prompt.MustNew("summarizeOutbreaks", `Summarise these disease outbreak reports for district health officials and say for each disease whether cases are increasing, stable or decreasing.
{{range .Reports}}- {{.Date}}: {{.Disease}} in {{.Location}}, {{.Cases}} cases (source: {{.Source}})
{{end}}
{{- with .Language}}Respond in {{.}}.{{end}}`),
}

func (s *Service) SummarizeOutbreaks(ctx context.Context, in OutbreakSummaryInput) (OutbreakSummaryOutput, error) {
	out, err := outbreakFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	// Keep one insight per disease; the backend sometimes repeats them.
	out.Insights = lo.UniqBy(out.Insights, func(i OutbreakInsight) string { return i.Disease })
	return out, nil
}
