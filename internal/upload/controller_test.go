package upload

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

type fakeAnalyzer struct {
	calls     atomic.Int32
	processFn func(ctx context.Context, file remote.File) (remote.AnalysisResult, error)
}

func (f *fakeAnalyzer) ProcessDocument(ctx context.Context, file remote.File) (remote.AnalysisResult, error) {
	f.calls.Add(1)
	if f.processFn != nil {
		return f.processFn(ctx, file)
	}
	return sampleResult(), nil
}

func sampleResult() remote.AnalysisResult {
	return remote.AnalysisResult{
		Summary:    "Notice under Section 41A CrPC.",
		SummaryHi:  "धारा 41A सीआरपीसी के तहत नोटिस।",
		Roadmap:    []string{"Appear before the officer", "Carry identity proof"},
		RoadmapHi:  []string{"अधिकारी के सामने पेश हों", "पहचान पत्र साथ रखें"},
		Rights:     "Arrest is not automatic.",
		RightsHi:   "गिरफ्तारी स्वचालित नहीं है।",
		Timeline:   "3-6 Months",
		TimelineHi: "3-6 महीने",
	}
}

func pdfFile(name string, size int) remote.File {
	data := make([]byte, size)
	copy(data, []byte("%PDF-1.4\n"))
	return remote.File{Name: name, Data: data}
}

func TestSubmitSucceeds(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	ctrl := NewController(analyzer, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	if err := ctrl.Submit(context.Background(), pdfFile("notice.pdf", 2<<20)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctrl.Wait()

	s := ctrl.Snapshot()
	if s.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", s.Status)
	}
	if s.Result == nil {
		t.Fatal("expected a result")
	}
	want := sampleResult()
	if s.Result.Summary != want.Summary || s.Result.SummaryHi != want.SummaryHi ||
		s.Result.Rights != want.Rights || s.Result.RightsHi != want.RightsHi ||
		strings.Join(s.Result.Roadmap, "|") != strings.Join(want.Roadmap, "|") ||
		strings.Join(s.Result.RoadmapHi, "|") != strings.Join(want.RoadmapHi, "|") ||
		s.Result.Timeline != want.Timeline {
		t.Errorf("result changed in transit: %+v", s.Result)
	}
	if analyzer.calls.Load() != 1 {
		t.Errorf("analyzer calls = %d, want 1", analyzer.calls.Load())
	}
}

func TestSubmitRateLimitedClearsFile(t *testing.T) {
	analyzer := &fakeAnalyzer{processFn: func(context.Context, remote.File) (remote.AnalysisResult, error) {
		return remote.AnalysisResult{}, &fault.RemoteError{StatusCode: http.StatusTooManyRequests}
	}}
	ctrl := NewController(analyzer, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	if err := ctrl.Submit(context.Background(), pdfFile("notice.pdf", 1024)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctrl.Wait()

	s := ctrl.Snapshot()
	if s.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", s.Status)
	}
	if !strings.Contains(s.Error, "quota") {
		t.Errorf("error = %q, want a rate-limit message", s.Error)
	}
	if s.FileName != "" {
		t.Errorf("file = %q, want it cleared so the user reselects", s.FileName)
	}
	if s.Result != nil {
		t.Error("failed session must not expose a result")
	}
}

func TestSecondSubmitRejectedWhileUploading(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{processFn: func(context.Context, remote.File) (remote.AnalysisResult, error) {
		<-release
		return sampleResult(), nil
	}}
	ctrl := NewController(analyzer, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	if err := ctrl.Submit(context.Background(), pdfFile("first.pdf", 64)); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	before := ctrl.Snapshot()

	err := ctrl.Submit(context.Background(), pdfFile("second.pdf", 64))
	if !errors.Is(err, fault.ErrAlreadyInProgress) {
		t.Fatalf("second Submit() error = %v, want ErrAlreadyInProgress", err)
	}
	after := ctrl.Snapshot()
	if after != before {
		t.Errorf("rejected submit altered the session: before %+v after %+v", before, after)
	}
	if err := ctrl.Reset(); !errors.Is(err, fault.ErrAlreadyInProgress) {
		t.Errorf("Reset() while uploading = %v, want ErrAlreadyInProgress", err)
	}

	close(release)
	ctrl.Wait()
	if analyzer.calls.Load() != 1 {
		t.Errorf("analyzer calls = %d, want 1", analyzer.calls.Load())
	}
	if got := ctrl.Snapshot(); got.FileName != "first.pdf" || got.Status != StatusSucceeded {
		t.Errorf("session = %+v, want first.pdf succeeded", got)
	}
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{processFn: func(ctx context.Context, _ remote.File) (remote.AnalysisResult, error) {
		<-release
		if ctx.Err() != nil {
			return remote.AnalysisResult{}, ctx.Err()
		}
		return sampleResult(), nil
	}}
	ctrl := NewController(analyzer, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	ctx, cancel := context.WithCancel(context.Background())
	if err := ctrl.Submit(ctx, pdfFile("a.pdf", 64)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	cancel()
	close(release)
	ctrl.Wait()

	if s := ctrl.Snapshot(); s.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded after the caller went away", s.Status)
	}
}

func TestResetIdempotence(t *testing.T) {
	ctrl := NewController(&fakeAnalyzer{}, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset() on idle = %v", err)
	}
	if s := ctrl.Snapshot(); s != (Session{Status: StatusIdle}) {
		t.Fatalf("idle reset changed state: %+v", s)
	}

	if err := ctrl.Submit(context.Background(), pdfFile("a.pdf", 64)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctrl.Wait()
	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset() after success = %v", err)
	}
	if s := ctrl.Snapshot(); s.Status != StatusIdle || s.Result != nil || s.FileName != "" {
		t.Fatalf("after reset: %+v", s)
	}
	if _, ok := ctrl.Result(); ok {
		t.Fatal("Result() still available after reset")
	}

	failing := NewController(&fakeAnalyzer{processFn: func(context.Context, remote.File) (remote.AnalysisResult, error) {
		return remote.AnalysisResult{}, fault.ErrNetwork
	}}, Options{Clock: clock.NewFake(time.Unix(0, 0))})
	_ = failing.Submit(context.Background(), pdfFile("a.pdf", 64))
	failing.Wait()
	if err := failing.Reset(); err != nil {
		t.Fatalf("Reset() after failure = %v", err)
	}
	if s := failing.Snapshot(); s.Status != StatusIdle || s.Error != "" {
		t.Fatalf("after reset: %+v", s)
	}
}

func TestCountdownIsCosmetic(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	release := make(chan struct{})
	ctrl := NewController(&fakeAnalyzer{processFn: func(context.Context, remote.File) (remote.AnalysisResult, error) {
		<-release
		return sampleResult(), nil
	}}, Options{Clock: fake, CountdownTicks: 5})

	if err := ctrl.Submit(context.Background(), pdfFile("a.pdf", 64)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := ctrl.Snapshot().Countdown; got != 5 {
		t.Fatalf("countdown = %d, want 5", got)
	}

	fake.Advance(3 * time.Second)
	if got := ctrl.Snapshot().Countdown; got != 2 {
		t.Fatalf("countdown = %d, want 2", got)
	}

	// reaching zero does not settle the upload
	fake.Advance(10 * time.Second)
	if s := ctrl.Snapshot(); s.Countdown != 0 || s.Status != StatusUploading {
		t.Fatalf("session = %+v, want uploading with countdown 0", s)
	}
	if fake.Pending() != 0 {
		t.Fatalf("pending timers = %d, want the countdown to stop at zero", fake.Pending())
	}

	close(release)
	ctrl.Wait()
	if fake.Pending() != 0 {
		t.Fatalf("pending timers = %d after settle", fake.Pending())
	}
}

func TestInvalidFileNeverReachesNetwork(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	ctrl := NewController(analyzer, Options{Clock: clock.NewFake(time.Unix(0, 0)), MaxBytes: 1024})

	tests := []struct {
		name string
		file remote.File
	}{
		{"extension", remote.File{Name: "setup.exe", Data: []byte("MZ")}},
		{"oversized", pdfFile("big.pdf", 2048)},
		{"renamed text", remote.File{Name: "notes.pdf", Data: []byte("just some text")}},
		{"empty", remote.File{Name: "empty.png"}},
		{"image named pdf", remote.File{Name: "notice.pdf", Data: append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctrl.Submit(context.Background(), tt.file)
			if !errors.Is(err, fault.ErrInvalidFile) {
				t.Fatalf("Submit() error = %v, want ErrInvalidFile", err)
			}
			if s := ctrl.Snapshot(); s.Status != StatusFailed || s.Error == "" {
				t.Fatalf("session = %+v, want failed with message", s)
			}
		})
	}
	if analyzer.calls.Load() != 0 {
		t.Fatalf("analyzer calls = %d, want 0", analyzer.calls.Load())
	}
}

func TestValidateSniffsContentType(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0}, 16)...)
	file, err := Validate(remote.File{Name: "scan.PNG", ContentType: "text/plain", Data: png}, 0)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if file.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", file.ContentType)
	}
}

func TestOnSettledReceivesResult(t *testing.T) {
	var gotName string
	ctrl := NewController(&fakeAnalyzer{}, Options{
		Clock: clock.NewFake(time.Unix(0, 0)),
		OnSettled: func(file remote.File, result remote.AnalysisResult) {
			gotName = file.Name + ":" + result.Summary
		},
	})
	if err := ctrl.Submit(context.Background(), pdfFile("a.pdf", 64)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctrl.Wait()
	if gotName != "a.pdf:"+sampleResult().Summary {
		t.Errorf("OnSettled got %q", gotName)
	}
}
