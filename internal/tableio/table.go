package tableio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Table is an in-memory table addressed by column name.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable builds a table from a header and rows. Later duplicate column
// names are ignored.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
	return t
}

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Get returns the value of col in row i, or "" when the column is absent or the row is short.
func (t *Table) Get(i int, col string) string {
	j, ok := t.index[col]
	if !ok || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Float returns col in row i parsed as a float, and false when it is missing or not numeric.
func (t *Table) Float(i int, col string) (float64, bool) {
	s := strings.TrimSpace(t.Get(i, col))
	if s == "" || strings.EqualFold(s, "NA") || strings.EqualFold(s, "NaN") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// TableOptions controls how ReadTable interprets a file.
type TableOptions struct {
	Encoding  string // charset label understood by htmlindex; empty or utf-8 reads raw bytes
	SheetName string // xlsx only
	Delimiter rune   // overrides the extension-based choice when set
}

// ReadTable reads a whole delimited or XLSX file, choosing the parser from
// the extension: .tsv and .tab are tab-delimited, .xlsx is a workbook,
// everything else is comma-delimited. The first row is the header.
func ReadTable(ctx context.Context, path string, opts TableOptions) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		rows, err := ReadXLSX(path, XLSXOptions{SheetName: opts.SheetName})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, eris.Errorf("tableio: %s is empty", path)
		}
		return NewTable(rows[0], rows[1:]), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tableio: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r, err := decodeReader(f, opts.Encoding)
	if err != nil {
		return nil, err
	}

	delim := ','
	if ext == ".tsv" || ext == ".tab" {
		delim = '\t'
	}
	if opts.Delimiter != 0 {
		delim = opts.Delimiter
	}
	return readDelimited(ctx, r, delim)
}

func readDelimited(ctx context.Context, r io.Reader, delim rune) (*Table, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{
		Delimiter:  delim,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.New("tableio: missing header row")
	}
	return NewTable(header, rows), nil
}

// decodeReader wraps r so that text in the named charset is read as UTF-8.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "tableio: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
