package models

import "errors"

// Sentinel errors shared across packages so HTTP handlers can map outcomes to
// status codes with errors.Is.
var (
	ErrInvalidSession   = errors.New("invalid session id")
	ErrExpiredSession   = errors.New("session expired")
	ErrInvalidPath      = errors.New("invalid artifact path")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrMissingFile      = errors.New("file is required")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrFileTooLarge     = errors.New("file too large")
	ErrConversionFailed = errors.New("conversion failed")
	ErrPackagingFailed  = errors.New("packaging failed")
)
