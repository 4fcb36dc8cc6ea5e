// Package compose turns brand parameters or an embedded composition program
// into the renderable entry source of a render project.
package compose

import (
	"regexp"
	"strings"

	"github.com/pixelpress/api/internal/model"
)

const (
	// SynthesizedCompositionID is the id of the generated fallback composition.
	SynthesizedCompositionID = "Video"
	// EmbeddedCompositionID is assumed for embedded programs that declare none.
	EmbeddedCompositionID = "InstagramReel"
)

var (
	compositionTagPattern = regexp.MustCompile(`<Composition\b[^>]*>`)
	compositionIDPattern  = regexp.MustCompile(`\bid\s*=\s*(?:"([^"]+)"|'([^']+)'|\{\s*["']([^"']+)["']\s*\})`)
)

// Resolution is the final entry source of a render project
type Resolution struct {
	Source        string
	CompositionID string
	// Embedded is true when Source came from the document rather than Synthesize.
	Embedded bool
}

// Resolve picks the entry source for a job. A non-blank embedded program is
// always used, rewritten to expose a named root; otherwise the composition is
// synthesized from brand.
func Resolve(brand model.Brand, embedded string) Resolution {
	if strings.TrimSpace(embedded) != "" {
		src := Rewrite(embedded)
		return Resolution{
			Source:        src,
			CompositionID: InferCompositionID(src, EmbeddedCompositionID),
			Embedded:      true,
		}
	}

	src := Synthesize(brand)
	return Resolution{
		Source:        src,
		CompositionID: InferCompositionID(src, SynthesizedCompositionID),
	}
}

// InferCompositionID returns the id of the first <Composition> declared in
// src, or fallback when there is none.
func InferCompositionID(src, fallback string) string {
	tag := compositionTagPattern.FindString(src)
	if tag == "" {
		return fallback
	}
	if id := firstGroup(compositionIDPattern.FindStringSubmatch(tag)); id != "" {
		return id
	}
	return fallback
}

// firstGroup returns the first non-empty capture group of m
func firstGroup(m []string) string {
	for i := 1; i < len(m); i++ {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}
