package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docmark/internal/artifact"
	"docmark/internal/converter"
	"docmark/internal/models"
	"docmark/internal/sweeper"
	"docmark/internal/worker"
)

// stubConverter fabricates a conversion result, writing any requested images
// into the image dir the orchestrator hands it.
type stubConverter struct {
	markdown   string
	imageNames []string
	charts     int
	err        error
}

func (c *stubConverter) Convert(_ context.Context, _ string, opts converter.Options) (*converter.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	res := &converter.Result{
		Markdown: c.markdown,
		Metadata: map[string]any{"pages": 1},
	}
	for i := 0; i < c.charts; i++ {
		res.Charts = append(res.Charts, converter.Chart{Title: fmt.Sprintf("chart-%d", i)})
	}
	for _, name := range c.imageNames {
		if err := os.MkdirAll(opts.ImageDir, 0o755); err != nil {
			return nil, err
		}
		p := filepath.Join(opts.ImageDir, name)
		if err := os.WriteFile(p, []byte("bytes of "+name), 0o644); err != nil {
			return nil, err
		}
		res.Images = append(res.Images, converter.Image{SavedPath: p})
	}
	return res, nil
}

func newTestService(t *testing.T, conv converter.Converter, mode artifact.Mode) (*Service, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(t.TempDir(), mode)
	pool := worker.NewDispatcher(worker.Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})
	sw := sweeper.New(time.Hour, 30*time.Minute)
	return New(store, conv, pool, sw, nil, nil, time.Hour), store
}

func TestConvertUploadNoImages(t *testing.T) {
	svc, store := newTestService(t, &stubConverter{markdown: "# Title"}, artifact.ModeDisk)

	resp, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename:      "notes.pdf",
		Size:          10 * 1024,
		Content:       strings.NewReader(strings.Repeat("a", 10*1024)),
		ExtractImages: true,
	})
	if err != nil {
		t.Fatalf("ConvertUpload: %v", err)
	}
	if !resp.Success || resp.HasImages {
		t.Fatalf("resp = %+v, want success without images", resp)
	}
	if resp.Stats.ImageCount != 0 || resp.ImageCount != 0 {
		t.Fatalf("imageCount = %d/%d, want 0", resp.ImageCount, resp.Stats.ImageCount)
	}
	if !strings.HasSuffix(downloadPath(t, resp.DownloadURL), "notes.md") {
		t.Fatalf("downloadUrl %q does not point at a markdown payload", resp.DownloadURL)
	}
	if resp.Markdown != "# Title" {
		t.Fatalf("markdown = %q", resp.Markdown)
	}

	// Staging is reclaimed once the request finishes.
	entries, _ := os.ReadDir(store.StagingRoot())
	if len(entries) != 0 {
		t.Fatalf("staging root still holds %d sessions", len(entries))
	}
}

func TestConvertUploadWithImages(t *testing.T) {
	conv := &stubConverter{
		markdown:   "# Doc\n\n![fig](images/fig1.png)\n![other](images/fig2.png)",
		imageNames: []string{"fig1.png", "fig2.png", "fig3.png"},
	}
	svc, store := newTestService(t, conv, artifact.ModeDisk)

	resp, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename:      "slides.docx",
		Size:          2048,
		Content:       strings.NewReader(strings.Repeat("b", 2048)),
		ExtractImages: true,
	})
	if err != nil {
		t.Fatalf("ConvertUpload: %v", err)
	}
	if !resp.HasImages || resp.ImageCount != 3 {
		t.Fatalf("hasImages=%v imageCount=%d, want true/3", resp.HasImages, resp.ImageCount)
	}
	if !strings.Contains(resp.Markdown, "/api/serve-artifact?session=") {
		t.Fatalf("image refs not rewritten: %q", resp.Markdown)
	}

	zipPath := filepath.Join(store.PublicRoot(), sessionFromURL(t, resp.DownloadURL), downloadPath(t, resp.DownloadURL))
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open archive %s: %v", zipPath, err)
	}
	defer zr.Close()
	var mdEntries, imgEntries int
	for _, f := range zr.File {
		switch {
		case strings.HasSuffix(f.Name, ".md"):
			mdEntries++
		case strings.HasPrefix(f.Name, "images/"):
			imgEntries++
		}
	}
	if mdEntries != 1 || imgEntries != 3 {
		t.Fatalf("archive has %d md + %d image entries, want 1 + 3", mdEntries, imgEntries)
	}
}

func TestConvertUploadInlineMode(t *testing.T) {
	conv := &stubConverter{markdown: "# Inline", imageNames: []string{"fig.png"}}
	svc, _ := newTestService(t, conv, artifact.ModeInline)

	resp, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename:      "doc.xlsx",
		Size:          100,
		Content:       strings.NewReader(strings.Repeat("c", 100)),
		ExtractImages: true,
	})
	if err != nil {
		t.Fatalf("ConvertUpload: %v", err)
	}
	if !strings.HasPrefix(resp.DownloadURL, "data:") {
		t.Fatalf("inline downloadUrl = %q", resp.DownloadURL)
	}
	if !strings.Contains(resp.Markdown, "image serving is unavailable") {
		t.Fatalf("inline markdown lacks the images notice: %q", resp.Markdown)
	}
}

func TestConvertUploadInlineModeNoticeSurvivesPersistFailure(t *testing.T) {
	conv := &stubConverter{markdown: "# Inline", imageNames: []string{"fig.png"}}
	store := artifact.NewStore(t.TempDir(), artifact.ModeInline)
	pool := worker.NewDispatcher(worker.Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})
	sw := sweeper.New(time.Hour, 30*time.Minute)
	svc := New(store, conv, pool, sw, nil, nil, time.Hour)

	// Occupy the public root with a regular file so every image persist
	// fails; the document still had images, so the notice must remain.
	if err := os.WriteFile(store.PublicRoot(), []byte("blocked"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename:      "doc.xlsx",
		Size:          100,
		Content:       strings.NewReader(strings.Repeat("c", 100)),
		ExtractImages: true,
	})
	if err != nil {
		t.Fatalf("ConvertUpload: %v", err)
	}
	if resp.HasImages || resp.ImageCount != 0 {
		t.Fatalf("hasImages=%v imageCount=%d, want false/0", resp.HasImages, resp.ImageCount)
	}
	if !strings.Contains(resp.Markdown, "image serving is unavailable") {
		t.Fatalf("markdown lacks the images notice after persist failure: %q", resp.Markdown)
	}
}

func TestConvertUploadConverterFailure(t *testing.T) {
	svc, store := newTestService(t, &stubConverter{err: errors.New("parser exploded")}, artifact.ModeDisk)

	_, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename: "bad.pdf",
		Size:     4,
		Content:  strings.NewReader("bad!"),
	})
	if !errors.Is(err, models.ErrConversionFailed) {
		t.Fatalf("err = %v, want ErrConversionFailed", err)
	}
	// Failed requests leak no staged files.
	entries, _ := os.ReadDir(store.StagingRoot())
	if len(entries) != 0 {
		t.Fatalf("staging root still holds %d sessions after failure", len(entries))
	}
}

func TestRewriteImageRefsLeavesExternalRefs(t *testing.T) {
	svc, _ := newTestService(t, &stubConverter{}, artifact.ModeDisk)
	md := "![ext](https://example.com/a.png) ![local](tmp/fig.png) ![unknown](tmp/other.png)"
	got := svc.rewriteImageRefs(md, "1700000000000-abc123XY", []string{"fig.png"}, 2)
	if !strings.Contains(got, "https://example.com/a.png") {
		t.Fatalf("external ref rewritten: %q", got)
	}
	if !strings.Contains(got, "/api/serve-artifact?session=1700000000000-abc123XY&path=fig.png") {
		t.Fatalf("local ref not rewritten: %q", got)
	}
	if !strings.Contains(got, "tmp/other.png") {
		t.Fatalf("unknown ref rewritten: %q", got)
	}
}

func TestSweepNowRemovesExpiredSessions(t *testing.T) {
	svc, store := newTestService(t, &stubConverter{markdown: "# x"}, artifact.ModeDisk)
	if _, err := svc.ConvertUpload(context.Background(), UploadRequest{
		Filename: "keep.pdf", Size: 1, Content: strings.NewReader("k"),
	}); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(store.PublicRoot(), "1600000000000-stale0AA")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	if got := svc.SweepNow(context.Background()); got != 1 {
		t.Fatalf("SweepNow removed %d, want 1", got)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale session survives SweepNow")
	}
}

func downloadPath(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse download url %q: %v", rawURL, err)
	}
	return u.Query().Get("path")
}

func sessionFromURL(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse download url %q: %v", rawURL, err)
	}
	return u.Query().Get("session")
}
