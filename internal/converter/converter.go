// Package converter defines the contract with the external document
// conversion tool. Format-specific parsing (pdf, docx, xlsx, pptx, hwp, hwpx)
// lives entirely behind this boundary.
package converter

import "context"

// Options controls one conversion run.
type Options struct {
	ImageDir       string `json:"imageDir"`
	OutputDir      string `json:"outputDir"`
	PreserveLayout bool   `json:"preserveLayout"`
	ExtractImages  bool   `json:"extractImages"`
	ExtractCharts  bool   `json:"extractCharts"`
}

// Image is one image the converter extracted to disk.
type Image struct {
	SavedPath string `json:"savedPath"`
}

// Chart is one chart the converter recognized.
type Chart struct {
	Title string         `json:"title"`
	Data  map[string]any `json:"data"`
}

// Result is the converter's output for one document.
type Result struct {
	Markdown string         `json:"markdown"`
	Images   []Image        `json:"images"`
	Charts   []Chart        `json:"charts"`
	Metadata map[string]any `json:"metadata"`
}

// Converter turns a staged input file into markdown plus extracted artifacts.
type Converter interface {
	Convert(ctx context.Context, inputPath string, opts Options) (*Result, error)
}
