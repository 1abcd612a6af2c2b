package models

import "time"

// ConversionStats summarizes one conversion for the response payload.
type ConversionStats struct {
	InputBytes       int64   `json:"inputBytes"`
	MarkdownBytes    int64   `json:"markdownBytes"`
	CompressionRatio float64 `json:"compressionRatio"`
	ImageCount       int     `json:"imageCount"`
	ChartCount       int     `json:"chartCount"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
}

// ConversionResponse is the JSON body returned by the convert endpoint.
type ConversionResponse struct {
	Success     bool            `json:"success"`
	Filename    string          `json:"filename"`
	HasImages   bool            `json:"hasImages"`
	DownloadURL string          `json:"downloadUrl"`
	Markdown    string          `json:"markdown"`
	ImageCount  int             `json:"imageCount"`
	ChartCount  int             `json:"chartCount"`
	Metadata    map[string]any  `json:"metadata"`
	Stats       ConversionStats `json:"stats"`
}

// ConversionRecord is the metadata row kept per conversion for the recent
// listing and for pruning alongside the filesystem sweep.
type ConversionRecord struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	FileName      string    `json:"file_name"`
	MimeType      string    `json:"mime_type"`
	InputBytes    int64     `json:"input_bytes"`
	MarkdownBytes int64     `json:"markdown_bytes"`
	ImageCount    int       `json:"image_count"`
	ChartCount    int       `json:"chart_count"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

const (
	ConversionStatusOK     = "ok"
	ConversionStatusFailed = "failed"
)
