// Package extract derives brand parameters and embedded programs from an
// uploaded document. Extraction never fails: anything missing or malformed
// falls back to the defaults, field by field.
package extract

import (
	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
)

// Options selects the strategy and the metadata keys to read
type Options struct {
	Strategy         model.ExtractStrategy
	BrandKey         string
	CodeKey          string
	OrchestrationKey string
}

// Result is everything extracted from one document
type Result struct {
	Brand model.Brand
	// Composition is the embedded composition program, empty when absent.
	Composition string
	// Orchestration is the embedded orchestration program, empty when absent.
	Orchestration string
}

// HasComposition reports whether an embedded composition program was found
func (r Result) HasComposition() bool {
	return r.Composition != ""
}

type Extractor struct {
	opts Options
	log  *logger.Logger
}

func New(opts Options, log *logger.Logger) *Extractor {
	if opts.Strategy == "" {
		opts.Strategy = model.StrategyAuto
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Extractor{opts: opts, log: log.WithComponent("extractor")}
}

// ExtractFile opens the PDF at path and extracts from it. An unreadable file
// yields the default brand.
func (e *Extractor) ExtractFile(path string) Result {
	doc, err := OpenPDF(path)
	if err != nil {
		e.log.Warn("document unreadable, using defaults", "error", err.Error())
		return Result{Brand: model.DefaultBrand()}
	}
	defer doc.Close()
	return e.Extract(doc)
}

// Extract applies the configured strategy to doc
func (e *Extractor) Extract(doc Document) Result {
	res := Result{Brand: model.DefaultBrand()}

	if e.opts.Strategy != model.StrategyMetadata {
		text, err := doc.Text()
		if err != nil {
			e.log.Warn("text extraction failed", "error", err.Error())
		} else {
			applyTextPatterns(text, &res.Brand)
		}
	}

	if e.opts.Strategy == model.StrategyText {
		return res
	}

	if raw, ok := doc.Metadata(e.opts.BrandKey); ok {
		bd, err := parseBrandJSON(raw)
		if err != nil {
			e.log.Warn("brand metadata malformed", "key", e.opts.BrandKey, "error", err.Error())
		}
		if bd != nil {
			bd.apply(&res.Brand)
		}
	}

	res.Composition = e.program(doc, e.opts.CodeKey)
	res.Orchestration = e.program(doc, e.opts.OrchestrationKey)

	e.log.Debug("extraction finished",
		"brand", res.Brand.Name,
		"composition", res.HasComposition(),
		"orchestration", res.Orchestration != "",
	)
	return res
}

func (e *Extractor) program(doc Document, key string) string {
	if key == "" {
		return ""
	}
	encoded, ok := readChunked(doc, key)
	if !ok {
		return ""
	}
	src, err := decodeProgram(encoded)
	if err != nil {
		e.log.Warn("embedded program ignored", "key", key, "error", err.Error())
		return ""
	}
	return src
}
