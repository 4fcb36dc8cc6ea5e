// Package pdftest builds small PDF documents for tests.
package pdftest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

// Build returns a one-page PDF showing lines of text, with info written to
// the document information dictionary.
func Build(lines []string, info map[string]string) []byte {
	var content bytes.Buffer
	content.WriteString("BT /F1 12 Tf 14 TL 72 720 Td\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("T*\n")
		}
		fmt.Fprintf(&content, "<%s> Tj\n", hex.EncodeToString([]byte(line)))
	}
	content.WriteString("ET")

	var infoDict bytes.Buffer
	infoDict.WriteString("<<")
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&infoDict, " /%s <%s>", k, hex.EncodeToString([]byte(info[k])))
	}
	infoDict.WriteString(" >>")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		infoDict.String(),
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\n", len(objects)+1, len(objects))
	fmt.Fprintf(&out, "startxref\n%d\n%%%%EOF\n", xref)
	return out.Bytes()
}
