// Package docsync mirrors the partner portal's per-case document
// archive into the local store and downloads flagged documents.
package docsync

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/overageworks/deedwatch/internal/auction"
)

// DocumentRow is one row of the portal's case-documents table.
type DocumentRow struct {
	DocumentID string
	DocType    string
	Title      string
	Filename   string
	Details    string
	DocDate    string
}

var collapseRE = regexp.MustCompile(`\s+`)

// ParseDocuments extracts the rows of the case-documents table. Rows
// without a document id (header rows, spacers) are skipped.
func ParseDocuments(html string) ([]DocumentRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &auction.ParseError{Detail: fmt.Sprintf("parse documents html: %v", err)}
	}

	var rows []DocumentRow
	doc.Find("table.table-public tr").Each(func(_ int, tr *goquery.Selection) {
		button := tr.Find("button[data-documentid]").First()
		id, ok := button.Attr("data-documentid")
		if !ok || strings.TrimSpace(id) == "" {
			return
		}
		docType, _ := button.Attr("data-doctype")

		row := DocumentRow{
			DocumentID: strings.TrimSpace(id),
			DocType:    strings.TrimSpace(docType),
			Title:      clean(tr.Find("strong").First().Text()),
			Filename:   clean(tr.Find(".muted div").First().Text()),
		}

		cells := tr.Find("td")
		if cells.Length() > 1 {
			row.Details = clean(cells.Eq(1).Text())
		}
		if cells.Length() > 2 {
			row.DocDate = clean(cells.Eq(2).Text())
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func clean(s string) string {
	return strings.TrimSpace(collapseRE.ReplaceAllString(s, " "))
}
