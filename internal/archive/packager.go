// Package archive bundles one markdown document and its extracted images into
// a single zip stream.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"docmark/internal/models"
)

// Entry is one image to bundle, identified by its on-disk location and the
// logical name it gets inside the archive's images/ folder.
type Entry struct {
	Path string
	Name string
}

// Pack streams a zip archive to w: <baseName>.md first, then each image as
// images/<name>. Entries are written one at a time straight from their source
// files, so peak memory stays flat regardless of image count.
//
// imageDir is the directory images are expected to live in. An entry outside
// it is logged and still included; rejecting it would break sessions whose
// artifacts landed in an alternate layout. Callers must not delete source
// files until Pack returns.
func Pack(w io.Writer, markdown []byte, baseName string, imageDir string, images []Entry) error {
	zw := zip.NewWriter(w)

	md, err := zw.Create(baseName + ".md")
	if err != nil {
		return fmt.Errorf("%w: create markdown entry: %v", models.ErrPackagingFailed, err)
	}
	if _, err := md.Write(markdown); err != nil {
		return fmt.Errorf("%w: write markdown: %v", models.ErrPackagingFailed, err)
	}

	for _, img := range images {
		if imageDir != "" {
			if rel, err := filepath.Rel(imageDir, img.Path); err != nil || strings.HasPrefix(rel, "..") {
				log.Printf("archive: image %s outside expected dir %s, including anyway", img.Path, imageDir)
			}
		}
		if err := addFile(zw, "images/"+img.Name, img.Path); err != nil {
			return fmt.Errorf("%w: add image %s: %v", models.ErrPackagingFailed, img.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finalize archive: %v", models.ErrPackagingFailed, err)
	}
	return nil
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
