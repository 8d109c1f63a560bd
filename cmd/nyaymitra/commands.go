package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nyaymitra/client/internal/export"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
	"nyaymitra/client/internal/search"
	"nyaymitra/client/internal/speech"
	"nyaymitra/client/internal/upload"
)

var (
	outputPath  string
	summaryOnly bool
)

func init() {
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: generated name in the current directory)")
	exportCmd.Flags().BoolVar(&summaryOnly, "summary", false, "save the summary as text instead of a PDF")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Upload a document and print its analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := analyzeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReport(result, remote.ParseLanguage(langArg))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search legal protections",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := remote.NewClient(cfg.APIURL, remote.WithTimeouts(cfg.UploadTimeout, cfg.SearchTimeout))
		ctrl := search.NewController(client, search.Options{Timeout: cfg.SearchTimeout})
		defer ctrl.Close()

		ctrl.OnQueryChange(strings.Join(args, " "))
		if !ctrl.Flush() {
			colorYellow.Println("Type more than two characters to search.")
			return nil
		}
		ctrl.Wait()

		snap := ctrl.Snapshot()
		if snap.Status != "" {
			colorYellow.Println(snap.Status)
		}
		lang := remote.ParseLanguage(langArg)
		for _, card := range snap.Results {
			printCard(card, lang)
		}
		if len(snap.Results) == 0 && snap.Status == "" {
			colorYellow.Println("No matching protections found.")
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Analyse a document and save the report as PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := analyzeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		lang := remote.ParseLanguage(langArg)

		var artifact export.Artifact
		if summaryOnly {
			artifact = export.SummaryArtifact(result, lang, time.Now())
		} else {
			renderer, err := export.NewChromeRenderer()
			if err != nil {
				return err
			}
			view := export.NewReportView(staticResult(result), nil)
			view.SetLanguage(lang)
			ctrl := export.NewController(view, renderer, export.PDFPackager{}, export.Options{Timeout: cfg.ExportTimeout})
			artifact, err = ctrl.ExportCurrentView(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s (%w)", fault.Message(err), err)
			}
		}

		path := outputPath
		if path == "" {
			path = artifact.Name
		}
		if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		colorGreen.Printf("Saved %s (%d bytes)\n", path, artifact.Size)
		return nil
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak <text>",
	Short: "Read text aloud",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		synth, err := speech.NewExecSynthesizer(cfg.TTSCommand)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		lang := speech.DetectLanguage(text)
		if cmd.Flags().Changed("lang") {
			lang = remote.ParseLanguage(langArg)
		}

		ctrl := speech.NewController(synth)
		defer ctrl.Close()
		if err := ctrl.Speak(text, lang); err != nil {
			return err
		}
		if voice := ctrl.Status().Voice; voice != "" {
			colorCyan.Printf("Speaking with %s\n", voice)
		}
		ctrl.Wait()
		if msg := ctrl.Status().Error; msg != "" {
			return errors.New(msg)
		}
		return nil
	},
}

type staticResult remote.AnalysisResult

func (r staticResult) Result() (remote.AnalysisResult, bool) {
	return remote.AnalysisResult(r), true
}

// analyzeFile uploads path and prints the countdown until the analysis settles.
func analyzeFile(ctx context.Context, path string) (remote.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return remote.AnalysisResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	client := remote.NewClient(cfg.APIURL, remote.WithTimeouts(cfg.UploadTimeout, cfg.SearchTimeout))
	ctrl := upload.NewController(client, upload.Options{
		CountdownTicks: cfg.CountdownTicks,
		MaxBytes:       cfg.MaxUploadBytes,
	})
	if err := ctrl.Submit(ctx, remote.File{Name: filepath.Base(path), Data: data}); err != nil {
		return remote.AnalysisResult{}, fmt.Errorf("%s (%w)", fault.Message(err), err)
	}

	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		session := ctrl.Snapshot()
		if session.Status == upload.StatusUploading {
			colorCyan.Printf("\rAnalysing %s... %2ds ", session.FileName, session.Countdown)
		}
		select {
		case <-done:
			fmt.Println()
			session = ctrl.Snapshot()
			if session.Status != upload.StatusSucceeded {
				return remote.AnalysisResult{}, errors.New(session.Error)
			}
			result, _ := ctrl.Result()
			return result, nil
		case <-ticker.C:
		}
	}
}

func printReport(result remote.AnalysisResult, lang remote.Language) {
	report := result.Localized(lang)
	heading, roadmap, rights, timeline := "Summary", "Roadmap", "Rights & Warnings", "Estimated timeline"
	if lang == remote.Hindi {
		heading, roadmap, rights, timeline = "सारांश", "आगे की राह", "अधिकार और चेतावनियाँ", "अनुमानित समय"
	}

	colorGreen.Println(heading)
	fmt.Println(firstNonEmpty(report.Summary, "Analysis pending..."))
	fmt.Println()
	colorGreen.Println(roadmap)
	for i, step := range report.Roadmap {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
	fmt.Println()
	colorYellow.Println(rights)
	fmt.Println(report.Rights)
	fmt.Println()
	colorCyan.Printf("%s: %s\n", timeline, report.Timeline)
	if result.CaseCategory != "" {
		colorCyan.Printf("Category: %s\n", result.CaseCategory)
	}
}

func printCard(card remote.RightCard, lang remote.Language) {
	title, detail, timeline := card.Title, card.Detail, card.Timeline
	if lang == remote.Hindi {
		title = firstNonEmpty(card.TitleHi, card.Title)
		detail = firstNonEmpty(card.DetailHi, card.Detail)
		timeline = firstNonEmpty(card.TimelineHi, card.Timeline)
	}
	if card.Type == remote.CardWarning {
		colorYellow.Printf("! %s\n", title)
	} else {
		colorGreen.Printf("* %s\n", title)
	}
	fmt.Printf("  %s\n", detail)
	if timeline != "" {
		colorCyan.Printf("  %s\n", timeline)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
