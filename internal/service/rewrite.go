package service

import (
	"path"
	"regexp"
	"strings"

	"docmark/internal/artifact"
)

var imageRefPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// rewriteImageRefs points markdown image references at servable URLs. The
// converter emits references to its local extraction paths; only references
// whose base name matches a persisted image are rewritten. In inline mode
// there is nowhere to serve images from, so the markdown gets a notice
// whenever the document had images, even if none survived persisting.
func (s *Service) rewriteImageRefs(markdown, sessionID string, persisted []string, extracted int) string {
	if s.store.Mode() == artifact.ModeInline {
		if extracted > 0 {
			return markdown + imagesUnavailableNotice
		}
		return markdown
	}
	if len(persisted) == 0 {
		return markdown
	}

	known := make(map[string]struct{}, len(persisted))
	for _, name := range persisted {
		known[name] = struct{}{}
	}

	return imageRefPattern.ReplaceAllStringFunc(markdown, func(ref string) string {
		m := imageRefPattern.FindStringSubmatch(ref)
		target := strings.TrimSpace(m[2])
		if strings.Contains(target, "://") || strings.HasPrefix(target, "data:") {
			return ref
		}
		name := path.Base(target)
		if _, ok := known[name]; !ok {
			return ref
		}
		return "![" + m[1] + "](/api/serve-artifact?session=" + sessionID + "&path=" + name + ")"
	})
}
