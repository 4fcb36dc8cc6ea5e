package extract

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pixelpress/api/internal/model"
)

// brandDocument mirrors the JSON stored in the brand metadata entry
type brandDocument struct {
	Brand struct {
		Name    string `json:"name"`
		Tagline string `json:"tagline"`
		Colors  struct {
			Primary   string `json:"primary"`
			Secondary string `json:"secondary"`
			Accent    string `json:"accent"`
		} `json:"colors"`
		Website string `json:"website"`
	} `json:"brand"`
	Marketing struct {
		CTA string `json:"cta"`
	} `json:"marketing"`
	Social struct {
		Instagram string `json:"instagram"`
	} `json:"social"`
}

// parseBrandJSON decodes raw as far as it can. Fields with the wrong JSON type
// are skipped while the rest are still decoded.
func parseBrandJSON(raw string) (*brandDocument, error) {
	var doc brandDocument
	err := json.Unmarshal([]byte(raw), &doc)
	if err == nil {
		return &doc, nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &doc, err
	}
	return nil, err
}

// apply overlays every non-empty, valid field onto b
func (d *brandDocument) apply(b *model.Brand) {
	setText(&b.Name, d.Brand.Name)
	setText(&b.Tagline, d.Brand.Tagline)
	setText(&b.Website, d.Brand.Website)
	setText(&b.CTA, d.Marketing.CTA)
	setText(&b.Instagram, d.Social.Instagram)
	setColor(&b.PrimaryColor, d.Brand.Colors.Primary)
	setColor(&b.SecondaryColor, d.Brand.Colors.Secondary)
	setColor(&b.AccentColor, d.Brand.Colors.Accent)
}

func setText(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setColor(dst *string, v string) {
	v = strings.TrimSpace(v)
	if model.IsHexColor(v) {
		*dst = v
	}
}

// readChunked returns the metadata stored under key, or the concatenation of
// consecutive numbered parts key_0/key_1, key_2, ... when key itself is absent.
func readChunked(doc Document, key string) (string, bool) {
	if v, ok := doc.Metadata(key); ok {
		return v, true
	}

	start := 1
	if _, ok := doc.Metadata(key + "_0"); ok {
		start = 0
	}

	var b strings.Builder
	found := false
	for i := start; ; i++ {
		part, ok := doc.Metadata(key + "_" + strconv.Itoa(i))
		if !ok {
			break
		}
		b.WriteString(part)
		found = true
	}
	return b.String(), found
}

// decodeProgram decodes base64 program text, tolerating whitespace, missing
// padding and the URL alphabet.
func decodeProgram(encoded string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, encoded)
	if cleaned == "" {
		return "", errors.New("empty program")
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if data, err := enc.DecodeString(cleaned); err == nil {
			if strings.TrimSpace(string(data)) == "" {
				return "", errors.New("empty program")
			}
			return string(data), nil
		}
	}
	return "", fmt.Errorf("invalid base64 (%d chars)", len(cleaned))
}
