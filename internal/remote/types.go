// Package remote is the consumed contract of the document-analysis backend:
// the upload endpoint that returns an analysis and the legal-knowledge search.
package remote

import "strings"

// Language selects which half of a bilingual record is shown.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
)

// ParseLanguage maps user input to a Language, defaulting to English.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hi", "hi-in", "hindi":
		return Hindi
	default:
		return English
	}
}

// File is a document selected for analysis.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// AnalysisResult is the record returned by the document service. Only the
// bilingual fields are guaranteed; the rest is passed through when present.
type AnalysisResult struct {
	ID         *int   `json:"id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	UploadDate string `json:"upload_date,omitempty"`
	Language   string `json:"language,omitempty"`

	Summary    string   `json:"simplified_summary"`
	SummaryHi  string   `json:"simplified_summary_hi"`
	Roadmap    []string `json:"roadmap"`
	RoadmapHi  []string `json:"roadmap_hi"`
	Rights     string   `json:"rights_and_warnings"`
	RightsHi   string   `json:"rights_and_warnings_hi"`
	Timeline   string   `json:"timeline,omitempty"`
	TimelineHi string   `json:"timeline_hi,omitempty"`

	Complexity   string `json:"complexity,omitempty"`
	CaseCategory string `json:"case_category,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate a stored result.
func (a AnalysisResult) Clone() AnalysisResult {
	out := a
	if a.ID != nil {
		id := *a.ID
		out.ID = &id
	}
	out.Roadmap = append([]string(nil), a.Roadmap...)
	out.RoadmapHi = append([]string(nil), a.RoadmapHi...)
	return out
}

// LocalizedReport is one language's view of an analysis.
type LocalizedReport struct {
	Language Language
	Summary  string
	Roadmap  []string
	Rights   string
	Timeline string
}

// Localized picks the fields for lang. A missing timeline falls back to the
// district-court estimate the backend uses.
func (a AnalysisResult) Localized(lang Language) LocalizedReport {
	if lang == Hindi {
		return LocalizedReport{
			Language: Hindi,
			Summary:  a.SummaryHi,
			Roadmap:  append([]string(nil), a.RoadmapHi...),
			Rights:   a.RightsHi,
			Timeline: firstNonBlank(a.TimelineHi, "2-4 साल"),
		}
	}
	return LocalizedReport{
		Language: English,
		Summary:  a.Summary,
		Roadmap:  append([]string(nil), a.Roadmap...),
		Rights:   a.Rights,
		Timeline: firstNonBlank(a.Timeline, "2-4 Years"),
	}
}

// CardType classifies a rights card.
type CardType string

const (
	CardInfo    CardType = "info"
	CardWarning CardType = "warning"
)

// RightCard is a single rights/warning record from the legal-search service.
type RightCard struct {
	Title      string   `json:"title"`
	TitleHi    string   `json:"titleHi"`
	Detail     string   `json:"detail"`
	DetailHi   string   `json:"detailHi"`
	Type       CardType `json:"type"`
	Timeline   string   `json:"timeline,omitempty"`
	TimelineHi string   `json:"timeline_hi,omitempty"`
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
