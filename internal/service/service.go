// Package service orchestrates one conversion request: stage the upload, run
// the external converter, publish derived artifacts, and assemble the
// response.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docmark/internal/archive"
	"docmark/internal/artifact"
	"docmark/internal/converter"
	"docmark/internal/models"
	"docmark/internal/session"
	"docmark/internal/storage"
	"docmark/internal/sweeper"
	"docmark/internal/worker"
)

// Service owns the artifact store, the converter collaborator, and the
// retention sweeper for the lifetime of the process.
type Service struct {
	store   *artifact.Store
	conv    converter.Converter
	pool    *worker.Dispatcher
	sweep   *sweeper.Sweeper
	records *storage.Records
	cache   *ResultCache
	window  time.Duration
}

func New(store *artifact.Store, conv converter.Converter, pool *worker.Dispatcher, sw *sweeper.Sweeper, records *storage.Records, cache *ResultCache, window time.Duration) *Service {
	if window <= 0 {
		window = session.DefaultRetention
	}
	return &Service{
		store:   store,
		conv:    conv,
		pool:    pool,
		sweep:   sw,
		records: records,
		cache:   cache,
		window:  window,
	}
}

// UploadRequest carries one validated upload into the orchestrator.
type UploadRequest struct {
	Filename       string
	Size           int64
	Content        io.Reader
	PreserveLayout bool
	ExtractImages  bool
	ExtractCharts  bool
}

// imagesUnavailableNotice is appended in inline mode, where extracted images
// have no servable home.
const imagesUnavailableNotice = "\n\n> Note: this document contains images, but image serving is unavailable in this deployment."

// ConvertUpload runs the full pipeline. Staging failure is fatal; converter
// and packaging failures surface as wrapped sentinels after best-effort
// cleanup; per-image copy failures degrade the result instead of failing it.
func (s *Service) ConvertUpload(ctx context.Context, req UploadRequest) (*models.ConversionResponse, error) {
	started := time.Now()
	sid := session.New()

	hasher := sha256.New()
	staged, err := s.store.StageInput(sid, req.Filename, io.TeeReader(req.Content, hasher))
	if err != nil {
		return nil, err
	}
	// The staged input and converter scratch are reclaimed whatever happens
	// below. Packaging streams from the image directory, so this must stay
	// the last thing to run.
	defer s.store.Cleanup(sid)

	key := cacheKey(hex.EncodeToString(hasher.Sum(nil)), req.PreserveLayout, req.ExtractImages, req.ExtractCharts)
	if resp := s.cache.get(ctx, key); resp != nil {
		return resp, nil
	}

	result, err := s.runConverter(ctx, staged, sid, req)
	if err != nil {
		s.recordConversion(ctx, sid, req, nil, 0, models.ConversionStatusFailed)
		return nil, err
	}

	var images []artifact.Image
	if req.ExtractImages {
		for _, img := range result.Images {
			images = append(images, artifact.Image{
				SourcePath: img.SavedPath,
				Name:       filepath.Base(img.SavedPath),
			})
		}
	}
	persisted, skipped := s.store.PersistImages(sid, images)
	if skipped > 0 {
		log.Printf("session %s: %d of %d images skipped", sid, skipped, len(images))
	}

	markdown := s.rewriteImageRefs(result.Markdown, sid, persisted, len(images))
	baseName := outputBaseName(req.Filename)

	downloadURL, err := s.writeDeliverable(sid, baseName, markdown, persisted)
	if err != nil {
		return nil, err
	}

	resp := &models.ConversionResponse{
		Success:     true,
		Filename:    req.Filename,
		HasImages:   len(persisted) > 0,
		DownloadURL: downloadURL,
		Markdown:    markdown,
		ImageCount:  len(persisted),
		ChartCount:  len(result.Charts),
		Metadata:    result.Metadata,
		Stats: models.ConversionStats{
			InputBytes:       req.Size,
			MarkdownBytes:    int64(len(markdown)),
			CompressionRatio: compressionRatio(req.Size, int64(len(markdown))),
			ImageCount:       len(persisted),
			ChartCount:       len(result.Charts),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		},
	}

	s.recordConversion(ctx, sid, req, resp, int64(len(markdown)), models.ConversionStatusOK)
	s.cache.put(ctx, key, resp, s.store.Mode(), s.window)
	return resp, nil
}

// runConverter executes the collaborator through the bounded pool so a burst
// of uploads cannot fork unbounded converter processes.
func (s *Service) runConverter(ctx context.Context, staged, sid string, req UploadRequest) (*converter.Result, error) {
	opts := converter.Options{
		ImageDir:       s.store.ImageDir(sid),
		OutputDir:      filepath.Dir(staged),
		PreserveLayout: req.PreserveLayout,
		ExtractImages:  req.ExtractImages,
		ExtractCharts:  req.ExtractCharts,
	}

	type outcome struct {
		result *converter.Result
		err    error
	}
	ch := make(chan outcome, 1)
	err := s.pool.Submit(worker.Job{Task: func() {
		r, err := s.conv.Convert(ctx, staged, opts)
		ch <- outcome{result: r, err: err}
	}})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrConversionFailed, out.err)
		}
		return out.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeDeliverable produces exactly one of: an archive (images present) or a
// bare markdown file. Disk mode streams the archive straight to its final
// location; inline mode buffers it into a data URL.
func (s *Service) writeDeliverable(sid, baseName, markdown string, persisted []string) (string, error) {
	if len(persisted) == 0 {
		return s.store.WriteOutput(sid, baseName+".md", []byte(markdown))
	}

	entries := make([]archive.Entry, 0, len(persisted))
	for _, name := range persisted {
		entries = append(entries, archive.Entry{Path: s.store.PublicImagePath(sid, name), Name: name})
	}
	imageDir := filepath.Dir(s.store.PublicImagePath(sid, "x"))

	if s.store.Mode() == artifact.ModeDisk {
		f, url, err := s.store.OutputFile(sid, baseName+".zip")
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
		}
		if err := archive.Pack(f, []byte(markdown), baseName, imageDir, entries); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
		}
		return url, nil
	}

	var buf bytes.Buffer
	if err := archive.Pack(&buf, []byte(markdown), baseName, imageDir, entries); err != nil {
		return "", err
	}
	return s.store.WriteOutput(sid, baseName+".zip", buf.Bytes())
}

func (s *Service) recordConversion(ctx context.Context, sid string, req UploadRequest, resp *models.ConversionResponse, markdownBytes int64, status string) {
	createdAt, err := session.Parse(sid)
	if err != nil {
		createdAt = time.Now()
	}
	rec := &models.ConversionRecord{
		SessionID:     sid,
		FileName:      req.Filename,
		MimeType:      mimeByExtension(req.Filename),
		InputBytes:    req.Size,
		MarkdownBytes: markdownBytes,
		Status:        status,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(s.window),
	}
	if resp != nil {
		rec.ImageCount = resp.ImageCount
		rec.ChartCount = resp.ChartCount
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		log.Printf("record conversion for session %s failed: %v", sid, err)
	}
}

// Recent lists the newest conversion records.
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.ConversionRecord, error) {
	return s.records.Recent(ctx, limit)
}

// SweepNow runs a synchronous retention sweep over both artifact roots and
// prunes the record index to match.
func (s *Service) SweepNow(ctx context.Context) int {
	removed := s.sweep.Sweep(s.store.StagingRoot(), s.store.PublicRoot())
	if _, err := s.records.PruneExpired(ctx, time.Now()); err != nil {
		log.Printf("prune conversion records failed: %v", err)
	}
	return removed
}

// SweepOpportunistic is sampled on inbound traffic; at most one sweep per
// interval actually runs, in the background.
func (s *Service) SweepOpportunistic() {
	s.sweep.MaybeSweep(s.store.StagingRoot(), s.store.PublicRoot())
}

func outputBaseName(filename string) string {
	base := filepath.Base(filepath.ToSlash(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSpace(base)
	if base == "" {
		base = "document"
	}
	return base
}

func compressionRatio(inputBytes, markdownBytes int64) float64 {
	if inputBytes <= 0 {
		return 0
	}
	ratio := float64(markdownBytes) / float64(inputBytes)
	return math.Round(ratio*1000) / 1000
}

func mimeByExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".hwp":
		return "application/x-hwp"
	case ".hwpx":
		return "application/x-hwpx"
	default:
		return "application/octet-stream"
	}
}
