package fetcher

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/model"
)

// feedColumns maps recognized header names to entry fields. Retailer feeds
// disagree on naming, so common aliases are accepted.
var feedColumns = map[string]string{
	"url":          "url",
	"link":         "url",
	"product_url":  "url",
	"title":        "title",
	"name":         "title",
	"product_name": "title",
	"price":        "price",
	"sale_price":   "price",
	"product_code": "code",
	"sku":          "code",
	"code":         "code",
	"mpn":          "code",
	"image_urls":   "images",
	"images":       "images",
	"image_link":   "images",
	"category":     "category",
	"product_type": "category",
}

type columnIndex map[string]int

func indexHeader(header []string) columnIndex {
	idx := make(columnIndex)
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if field, ok := feedColumns[key]; ok {
			if _, taken := idx[field]; !taken {
				idx[field] = i
			}
		}
	}
	return idx
}

func (ci columnIndex) get(row []string, field string) string {
	i, ok := ci[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// entryFromRow builds a catalog entry from one feed row. It returns false
// when the row lacks a URL or title, or carries an unparseable price.
func entryFromRow(ci columnIndex, row []string) (model.CatalogEntry, bool) {
	e := model.CatalogEntry{
		CatalogURL:  ci.get(row, "url"),
		Title:       ci.get(row, "title"),
		ProductCode: ci.get(row, "code"),
		Category:    ci.get(row, "category"),
	}
	if e.CatalogURL == "" || e.Title == "" {
		return e, false
	}

	if raw := ci.get(row, "price"); raw != "" {
		raw = strings.TrimPrefix(raw, "$")
		raw = strings.ReplaceAll(raw, ",", "")
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return e, false
		}
		e.Price = price
	}

	if raw := ci.get(row, "images"); raw != "" {
		for _, img := range strings.Split(raw, "|") {
			if img = strings.TrimSpace(img); img != "" {
				e.ImageURLs = append(e.ImageURLs, img)
			}
		}
	}
	return e, true
}

// ParseCSVFeed parses a headered CSV feed into catalog entries. Malformed
// rows are skipped with a warning rather than failing the feed.
func ParseCSVFeed(r io.Reader) ([]model.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("feed: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "feed: read csv header")
	}
	ci := indexHeader(header)
	if _, ok := ci["url"]; !ok {
		return nil, eris.New("feed: csv header missing url column")
	}

	var entries []model.CatalogEntry
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			zap.L().Warn("feed: skipping unreadable csv row", zap.Int("line", line), zap.Error(err))
			continue
		}
		entry, ok := entryFromRow(ci, row)
		if !ok {
			zap.L().Warn("feed: skipping malformed csv row", zap.Int("line", line))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseXLSXFeed parses the first sheet of an XLSX feed file into catalog
// entries. The first row is treated as the header.
func ParseXLSXFeed(path string) ([]model.CatalogEntry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("feed: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("feed: empty xlsx sheet")
	}

	ci := indexHeader(rowToStrings(sheet.Rows[0]))
	if _, ok := ci["url"]; !ok {
		return nil, eris.New("feed: xlsx header missing url column")
	}

	var entries []model.CatalogEntry
	for i, row := range sheet.Rows[1:] {
		entry, ok := entryFromRow(ci, rowToStrings(row))
		if !ok {
			zap.L().Warn("feed: skipping malformed xlsx row", zap.Int("row", i+2))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
