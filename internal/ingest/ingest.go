// Package ingest parses historical listing exports (XLSX, CSV) into
// raw listings for validation and backfill.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// Options configures file parsing.
type Options struct {
	// SheetName selects an XLSX sheet by name. Empty means the first
	// sheet. Ignored for CSV.
	SheetName string
}

// ReadFile parses an export file into raw listings, dispatching on the
// file extension. The first row must be a header naming the columns.
func ReadFile(path string, opts Options) ([]model.RawListing, error) {
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open csv")
		}
		defer f.Close()
		return ReadCSV(f)
	}
	return ReadXLSX(path, opts)
}

// ReadXLSX parses an XLSX export into raw listings.
func ReadXLSX(path string, opts Options) ([]model.RawListing, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("ingest: sheet is empty")
	}

	cols := columnIndex(rowToStrings(sheet.Rows[0]))
	listings := make([]model.RawListing, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if emptyRow(cells) {
			continue
		}
		listings = append(listings, rowToListing(cells, cols))
	}
	return listings, nil
}

// ReadCSV parses a CSV export into raw listings.
func ReadCSV(r io.Reader) ([]model.RawListing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	cols := columnIndex(header)

	var listings []model.RawListing
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		if emptyRow(record) {
			continue
		}
		listings = append(listings, rowToListing(record, cols))
	}
	return listings, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: file has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// columnIndex maps normalized header names to positions. Unknown
// columns are kept and land in listing metadata.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		if key != "" {
			cols[key] = i
		}
	}
	return cols
}

var knownColumns = map[string]bool{
	"external_id": true, "title": true, "price": true, "condition": true,
	"grade": true, "sale_type": true, "source_url": true, "description": true,
	"listed_at": true, "ends_at": true, "views": true, "watchers": true,
	"bids": true, "shipping_cost": true, "photo_url": true,
	"seller_name": true, "seller_feedback_score": true, "seller_feedback_percent": true,
}

func rowToListing(cells []string, cols map[string]int) model.RawListing {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	l := model.RawListing{
		ExternalID:   get("external_id"),
		Title:        get("title"),
		Price:        get("price"),
		Condition:    get("condition"),
		Grade:        get("grade"),
		SaleType:     model.SaleType(get("sale_type")),
		SourceURL:    get("source_url"),
		Description:  get("description"),
		ListedAt:     get("listed_at"),
		EndsAt:       get("ends_at"),
		ShippingCost: get("shipping_cost"),
		Views:        atoi(get("views")),
		Watchers:     atoi(get("watchers")),
		Bids:         atoi(get("bids")),
	}
	if url := get("photo_url"); url != "" {
		l.PhotoURLs = []string{url}
	}
	if name := get("seller_name"); name != "" {
		l.Seller = &model.RawSeller{
			Name:            name,
			FeedbackScore:   get("seller_feedback_score"),
			FeedbackPercent: get("seller_feedback_percent"),
		}
	}
	for name, i := range cols {
		if knownColumns[name] || i >= len(cells) {
			continue
		}
		if v := strings.TrimSpace(cells[i]); v != "" {
			if l.Metadata == nil {
				l.Metadata = map[string]any{}
			}
			l.Metadata[name] = v
		}
	}
	return l
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
