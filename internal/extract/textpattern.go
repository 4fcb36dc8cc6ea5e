package extract

import (
	"regexp"
	"strings"

	"github.com/pixelpress/api/internal/model"
)

var (
	brandLinePattern     = labelPattern("Brand")
	taglineLinePattern   = labelPattern("Tagline")
	ctaLinePattern       = labelPattern("CTA")
	instagramLinePattern = labelPattern("Instagram")
	websiteLinePattern   = labelPattern("Website")
	primaryLinePattern   = colorPattern("Primary")
	secondaryLinePattern = colorPattern("Secondary")
	accentLinePattern    = colorPattern("Accent")
)

func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + label + `:[ \t]*([^\r\n]+)`)
}

func colorPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + label + `:[ \t]*(#[0-9A-Fa-f]{6})\b`)
}

// applyTextPatterns overlays labeled `Label: value` lines found in text onto b.
// The first match per label wins.
func applyTextPatterns(text string, b *model.Brand) {
	setFirst(text, brandLinePattern, &b.Name)
	setFirst(text, taglineLinePattern, &b.Tagline)
	setFirst(text, ctaLinePattern, &b.CTA)
	setFirst(text, instagramLinePattern, &b.Instagram)
	setFirst(text, websiteLinePattern, &b.Website)
	setFirst(text, primaryLinePattern, &b.PrimaryColor)
	setFirst(text, secondaryLinePattern, &b.SecondaryColor)
	setFirst(text, accentLinePattern, &b.AccentColor)
}

func setFirst(text string, re *regexp.Regexp, dst *string) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		*dst = v
	}
}
