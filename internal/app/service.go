package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/config"
	"nyaymitra/client/internal/export"
	"nyaymitra/client/internal/remote"
	"nyaymitra/client/internal/search"
	"nyaymitra/client/internal/speech"
	"nyaymitra/client/internal/store"
	"nyaymitra/client/internal/upload"
)

// Archive stores every successful analysis.
type Archive interface {
	Save(ctx context.Context, file remote.File, result remote.AnalysisResult) (store.Report, error)
	List(ctx context.Context, limit int) ([]store.ReportSummary, error)
	Get(ctx context.Context, id string) (store.Report, error)
}

// Pinger is a backend health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the capabilities and backends the service is assembled from. Only
// Analyzer and Searcher are required.
type Deps struct {
	Analyzer    upload.Analyzer
	Searcher    search.Searcher
	Catalog     *search.Catalog
	Recognizer  search.Recognizer
	Synthesizer speech.Synthesizer
	Renderer    export.Renderer
	Packager    export.Packager
	Sink        export.Sink
	Archive     Archive
	Checks      map[string]Pinger
	Clock       clock.Clock
}

// Service owns one controller per screen and the backends behind them.
type Service struct {
	cfg     config.Config
	clock   clock.Clock
	upload  *upload.Controller
	search  *search.Controller
	catalog *search.Catalog
	speech  *speech.Controller
	export  *export.Controller
	view    *export.ReportView
	archive Archive
	checks  map[string]Pinger

	background sync.WaitGroup
}

// New wires the controllers.
func New(cfg config.Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Catalog == nil {
		deps.Catalog = search.NewCatalog(nil)
	}
	if deps.Packager == nil {
		deps.Packager = export.PDFPackager{}
	}

	s := &Service{
		cfg:     cfg,
		clock:   deps.Clock,
		catalog: deps.Catalog,
		archive: deps.Archive,
		checks:  deps.Checks,
	}

	s.upload = upload.NewController(deps.Analyzer, upload.Options{
		Clock:          deps.Clock,
		CountdownTicks: cfg.CountdownTicks,
		MaxBytes:       cfg.MaxUploadBytes,
		OnSettled:      s.archiveResult,
	})
	s.search = search.NewController(deps.Searcher, search.Options{
		Clock:      deps.Clock,
		Debounce:   cfg.Debounce,
		Timeout:    cfg.SearchTimeout,
		Recognizer: deps.Recognizer,
	})
	s.speech = speech.NewController(deps.Synthesizer)
	s.view = export.NewReportView(s.upload, deps.Clock)

	renderer := deps.Renderer
	if renderer == nil {
		renderer = unsupportedRenderer{}
	}
	s.export = export.NewController(s.view, renderer, deps.Packager, export.Options{
		Clock:   deps.Clock,
		Timeout: cfg.ExportTimeout,
		Sink:    deps.Sink,
	})
	return s
}

type unsupportedRenderer struct{}

func (unsupportedRenderer) Capture(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("render report: %w", errUnsupportedExport)
}

// archiveResult runs after each successful upload (fire-and-forget).
func (s *Service) archiveResult(file remote.File, result remote.AnalysisResult) {
	s.catalogRights(result)
	if s.archive == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		report, err := s.archive.Save(ctx, file, result)
		if err != nil {
			log.Printf("app: archive %s: %v", file.Name, err)
			return
		}
		log.Printf("app: archived %s as %s", file.Name, report.ID)
	}()
}

// catalogRights makes the rights paragraph of an analysis searchable offline.
func (s *Service) catalogRights(result remote.AnalysisResult) {
	if strings.TrimSpace(result.Rights) == "" && strings.TrimSpace(result.RightsHi) == "" {
		return
	}
	title := "Rights in " + firstNonBlank(result.Filename, "your document")
	s.catalog.Harvest([]remote.RightCard{{
		Title:      title,
		TitleHi:    "आपके दस्तावेज़ में अधिकार",
		Detail:     result.Rights,
		DetailHi:   result.RightsHi,
		Type:       remote.CardInfo,
		Timeline:   result.Timeline,
		TimelineHi: result.TimelineHi,
	}})
}

// Ready pings every configured backend.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, p := range s.checks {
		results[name] = p.Ping(ctx)
	}
	return results
}

// Upload

func (s *Service) SubmitDocument(ctx context.Context, file remote.File) error {
	return s.upload.Submit(ctx, file)
}

func (s *Service) UploadSession() upload.Session {
	return s.upload.Snapshot()
}

func (s *Service) ResetUpload() error {
	if err := s.upload.Reset(); err != nil {
		return err
	}
	s.speech.Stop()
	return nil
}

// Search

func (s *Service) Query(text string) search.Snapshot {
	s.search.OnQueryChange(text)
	return s.search.Snapshot()
}

func (s *Service) VoiceQuery(transcript string) search.Snapshot {
	s.search.OnVoiceResult(transcript)
	return s.search.Snapshot()
}

func (s *Service) Listen(ctx context.Context) (string, error) {
	return s.search.Listen(ctx)
}

func (s *Service) FlushSearch() bool {
	return s.search.Flush()
}

func (s *Service) SearchState() search.Snapshot {
	return s.search.Snapshot()
}

func (s *Service) Rights(query string, limit int) []remote.RightCard {
	return s.catalog.Lookup(query, limit)
}

// Speech

// Speak reads text aloud. Empty text reads the current summary in the report
// language; an empty language is detected from the text.
func (s *Service) Speak(text string, lang remote.Language) error {
	if strings.TrimSpace(text) == "" {
		result, ok := s.upload.Result()
		if !ok {
			return domainError(http.StatusConflict, "NO_REPORT", "There is no analysis to read aloud", nil)
		}
		if lang == "" {
			lang = s.view.Language()
		}
		text = result.Localized(lang).Summary
	}
	if lang == "" {
		lang = speech.DetectLanguage(text)
	}
	return s.speech.Speak(text, lang)
}

func (s *Service) StopSpeech() {
	s.speech.Stop()
}

func (s *Service) SpeechStatus() speech.Status {
	return s.speech.Status()
}

// Report and export

func (s *Service) SetLanguage(lang remote.Language) {
	s.view.SetLanguage(lang)
}

func (s *Service) ReportHTML(ctx context.Context) (string, error) {
	return s.view.CurrentView(ctx)
}

func (s *Service) Export(ctx context.Context) (export.Artifact, error) {
	return s.export.ExportCurrentView(ctx)
}

func (s *Service) ExportJob() export.Job {
	return s.export.Snapshot()
}

func (s *Service) SummaryText(lang remote.Language) (export.Artifact, error) {
	result, ok := s.upload.Result()
	if !ok {
		return export.Artifact{}, export.ErrNothingToExport
	}
	if lang == "" {
		lang = s.view.Language()
	}
	return export.SummaryArtifact(result, lang, s.clock.Now()), nil
}

// Archive

func (s *Service) Reports(ctx context.Context, limit int) ([]store.ReportSummary, error) {
	if s.archive == nil {
		return nil, errArchiveDisabled
	}
	return s.archive.List(ctx, limit)
}

func (s *Service) Report(ctx context.Context, id string) (store.Report, error) {
	if s.archive == nil {
		return store.Report{}, errArchiveDisabled
	}
	return s.archive.Get(ctx, id)
}

// LocalHelpURL is a maps search for legal aid near the given position, or a
// country-wide search without one.
func LocalHelpURL(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return "https://www.google.com/maps/search/Legal+Aid+Clinic+India"
	}
	query := url.PathEscape("Legal Aid Clinic or District Court near me")
	return fmt.Sprintf("https://www.google.com/maps/search/%s/@%.6f,%.6f,13z", query, *lat, *lon)
}

// Close stops playback and pending searches and waits for background archiving.
func (s *Service) Close() {
	s.speech.Close()
	s.search.Close()
	s.upload.Wait()
	s.search.Wait()
	s.background.Wait()
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
