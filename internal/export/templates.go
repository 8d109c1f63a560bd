package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/remote"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"inc": func(i int) int { return i + 1 },
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// labels holds the fixed report wording per language.
type labels struct {
	Heading        string
	Summary        string
	Timeline       string
	Roadmap        string
	Rights         string
	BackLink       string
	ExportButton   string
	LocalHelp      string
	GeneratedLabel string
}

var reportLabels = map[remote.Language]labels{
	remote.English: {
		Heading:        "Case Intelligence Report",
		Summary:        "Simplified Summary",
		Timeline:       "Timeline Prediction",
		Roadmap:        "Action Roadmap",
		Rights:         "Rights & Warnings",
		BackLink:       "Analyze New Document",
		ExportButton:   "Export PDF",
		LocalHelp:      "Find Local Help",
		GeneratedLabel: "Generated",
	},
	remote.Hindi: {
		Heading:        "केस इंटेलिजेंस रिपोर्ट",
		Summary:        "सरल सारांश",
		Timeline:       "समय सीमा का अनुमान",
		Roadmap:        "कार्य योजना",
		Rights:         "अधिकार और चेतावनियाँ",
		BackLink:       "नया दस्तावेज़ विश्लेषण करें",
		ExportButton:   "पीडीएफ निर्यात करें",
		LocalHelp:      "निकटतम सहायता",
		GeneratedLabel: "तैयार किया गया",
	},
}

// ReportData holds data for report template rendering.
type ReportData struct {
	Lang        remote.Language
	FileName    string
	Report      remote.LocalizedReport
	GeneratedAt time.Time
	Labels      labels
}

// RenderReportHTML renders the report view for result in lang.
func RenderReportHTML(result remote.AnalysisResult, lang remote.Language, generatedAt time.Time) (string, error) {
	localized := result.Localized(lang)
	data := ReportData{
		Lang:        localized.Language,
		FileName:    result.Filename,
		Report:      localized,
		GeneratedAt: generatedAt,
		Labels:      reportLabels[localized.Language],
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SummaryFileName is the download name for a summary saved at t.
func SummaryFileName(t time.Time) string {
	return fmt.Sprintf("NyayMitra_Summary_%d.txt", t.UnixMilli())
}

// SummaryArtifact packages the localized summary as plain text.
func SummaryArtifact(result remote.AnalysisResult, lang remote.Language, now time.Time) Artifact {
	text := result.Localized(lang).Summary
	if strings.TrimSpace(text) == "" {
		text = "Analysis pending..."
	}
	return Artifact{
		Name:      SummaryFileName(now),
		MimeType:  "text/plain; charset=utf-8",
		Size:      len(text),
		CreatedAt: now,
		Data:      []byte(text),
	}
}

// ResultSource exposes the analysis currently on screen.
type ResultSource interface {
	Result() (remote.AnalysisResult, bool)
}

// ReportView is the ViewSource for the report screen: the current analysis
// rendered in the selected language.
type ReportView struct {
	source ResultSource
	clock  clock.Clock

	mu   sync.RWMutex
	lang remote.Language
}

// NewReportView creates a view showing English first. clk stamps the
// generation time; nil means the wall clock.
func NewReportView(source ResultSource, clk clock.Clock) *ReportView {
	if clk == nil {
		clk = clock.Real{}
	}
	return &ReportView{source: source, clock: clk, lang: remote.English}
}

// SetLanguage switches the language the report is shown in.
func (v *ReportView) SetLanguage(lang remote.Language) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lang = lang
}

// Language returns the selected language.
func (v *ReportView) Language() remote.Language {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lang
}

// CurrentView renders the report on screen.
func (v *ReportView) CurrentView(context.Context) (string, error) {
	result, ok := v.source.Result()
	if !ok {
		return "", ErrNothingToExport
	}
	return RenderReportHTML(result, v.Language(), v.clock.Now())
}

const reportHTML = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
  <meta charset="UTF-8">
  <title>NyayMitra | {{.Labels.Heading}}</title>
  <style>
    body { background: #121212; color: #e5e5e5; font-family: {{if eq (print .Lang) "hi"}}"Noto Sans Devanagari", {{end}}Georgia, serif; line-height: 1.7; max-width: 1100px; margin: 0 auto; padding: 3rem; }
    h1 { color: #fff; letter-spacing: 0.1em; border-bottom: 1px solid rgba(212,175,55,0.3); padding-bottom: 1rem; }
    h1 span { color: #d4af37; }
    h2 { color: #d4af37; font-size: 0.9rem; text-transform: uppercase; letter-spacing: 0.2em; }
    .actions { display: flex; gap: 1rem; margin-bottom: 2rem; }
    .actions a, .actions button { background: #d4af37; color: #000; border: 0; padding: 0.6rem 1.2rem; text-transform: uppercase; font-size: 0.7rem; }
    .panel { background: rgba(30,30,30,0.6); border: 1px solid rgba(212,175,55,0.2); border-radius: 1rem; padding: 1.5rem; margin-bottom: 1.5rem; }
    .timeline { display: flex; justify-content: space-between; }
    .timeline strong { color: #d4af37; }
    ol li { margin-bottom: 0.75rem; }
    .meta { color: #888; font-size: 0.8rem; }
  </style>
</head>
<body>
  <div class="actions no-export">
    <a href="/">{{.Labels.BackLink}}</a>
    <a href="/report?lang=en">English</a>
    <a href="/report?lang=hi">हिन्दी</a>
    <button type="button">{{.Labels.LocalHelp}}</button>
    <button type="button">{{.Labels.ExportButton}}</button>
  </div>
  <h1>NyayMitra <span>{{.Labels.Heading}}</span></h1>
  {{if .FileName}}<p class="meta">{{.FileName}}</p>{{end}}
  <section class="panel">
    <h2>{{.Labels.Summary}}</h2>
    <p>{{.Report.Summary}}</p>
  </section>
  <section class="panel timeline">
    <h2>{{.Labels.Timeline}}</h2>
    <strong>{{.Report.Timeline}}</strong>
  </section>
  <section class="panel">
    <h2>{{.Labels.Roadmap}}</h2>
    <ol>{{range $i, $step := .Report.Roadmap}}
      <li data-step="{{inc $i}}">{{$step}}</li>{{end}}
    </ol>
  </section>
  <section class="panel">
    <h2>{{.Labels.Rights}}</h2>
    <p>{{.Report.Rights}}</p>
  </section>
  <p class="meta">{{.Labels.GeneratedLabel}}: {{formatDate .GeneratedAt "02 Jan 2006 15:04"}}</p>
</body>
</html>`
