package file

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FileType is the normalized kind of an input file.
type FileType string

const (
	TypePDF     FileType = "pdf"
	TypeWord    FileType = "word"
	TypeExcel   FileType = "excel"
	TypeText    FileType = "text"
	TypeUnknown FileType = "unknown"
)

// Classify returns the file type by extension.
func Classify(path string) FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return TypePDF
	case ".docx":
		return TypeWord
	case ".xlsx", ".xlsm", ".xls":
		return TypeExcel
	case ".txt", ".md", ".markdown":
		return TypeText
	default:
		return TypeUnknown
	}
}

// ExtractWordText returns the non-empty paragraphs of a .docx file, one per
// line.
func ExtractWordText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		return paragraphs(rc)
	}
	return "", fmt.Errorf("open docx: word/document.xml not found")
}

// paragraphs walks WordprocessingML and joins the text runs of each w:p.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		parts  []string
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(para.String()); s != "" {
					parts = append(parts, s)
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// Sheet is the preview of one worksheet.
type Sheet struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// WorkbookOverview lists the sheets of a workbook.
type WorkbookOverview struct {
	Sheets []Sheet `json:"sheets"`
}

// ExcelOverview reads the header row and up to maxRows data rows of every
// sheet.
func ExcelOverview(path string, maxRows int) (*WorkbookOverview, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	ov := &WorkbookOverview{Sheets: []Sheet{}}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		sheet := Sheet{Name: name, Headers: []string{}, Rows: [][]string{}}
		if len(rows) > 0 {
			sheet.Headers = rows[0]
			for _, row := range rows[1:] {
				if len(sheet.Rows) >= maxRows {
					break
				}
				sheet.Rows = append(sheet.Rows, row)
			}
		}
		ov.Sheets = append(ov.Sheets, sheet)
	}
	return ov, nil
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	urlRe   = regexp.MustCompile(`https?://[\w\-._~:/?#@!$&'()*+,;=%]+`)
	dateRe  = regexp.MustCompile(`\b(\d{4}[-/.]\d{1,2}[-/.]\d{1,2})\b`)
)

// Entities found in a text.
type Entities struct {
	URLs   []string `json:"urls"`
	Emails []string `json:"emails"`
	Dates  []string `json:"dates"`
}

// ExtractEntities returns the distinct URLs, emails and dates in text, each
// sorted.
func ExtractEntities(text string) Entities {
	return Entities{
		URLs:   unique(urlRe.FindAllString(text, -1)),
		Emails: unique(emailRe.FindAllString(text, -1)),
		Dates:  unique(dateRe.FindAllString(text, -1)),
	}
}

func emptyEntities() Entities {
	return Entities{URLs: []string{}, Emails: []string{}, Dates: []string{}}
}

func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := []string{}
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
