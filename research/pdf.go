package research

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText returns the plain text of the first maxPages pages of the
// PDF at path, pages separated by a blank line. maxPages <= 0 reads all
// pages. A page that cannot be decoded contributes an empty string.
func ExtractPDFText(path string, maxPages int) (_ string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unable to read PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to read PDF: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}

	texts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		texts = append(texts, pageText(r, i))
	}
	return strings.TrimSpace(strings.Join(texts, "\n\n")), nil
}

func pageText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// ChunkText splits text into pieces of at most maxChars runes.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/maxChars+1)
	for start := 0; start < len(runes); start += maxChars {
		end := min(start+maxChars, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
