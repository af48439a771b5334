package matching

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// InputOptions chooses which columns map to record fields. Each value is a
// header name or a 1-based "#N" index; empty values are auto-detected.
type InputOptions struct {
	NameColumn  string
	IDColumn    string
	GroupColumn string
}

// ColumnReport describes the first row of a delimited file and the columns
// LoadRecords would read from it. Fields hold a header name, or "#N" when the
// file has no header; an empty field is not read.
type ColumnReport struct {
	Columns   []string
	HasHeader bool
	Name      string
	ID        string
	Group     string
}

// LoadRecords reads names from a CSV, TSV or plain text file. Plain text
// files hold one name per line. Records without an ID column are numbered
// from 1 in file order. Rows with an empty name are skipped.
func LoadRecords(path string, opts InputOptions) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	if comma, ok := delimiterFor(path); ok {
		records, err = parseDelimitedRecords(path, comma, opts)
	} else {
		records, err = parsePlainTextRecords(path)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyInput)
	}
	return records, nil
}

func delimiterFor(path string) (rune, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ',', true
	case ".tsv":
		return '\t', true
	}
	return 0, false
}

func newDelimitedReader(r io.Reader, comma rune) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func cleanRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = cleanCell(cell)
	}
	return out
}

// openText opens path and decodes it as UTF-8, or UTF-16 when a BOM says so.
// Any leading BOM is consumed.
func openText(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	dec := xunicode.BOMOverride(xunicode.UTF8.NewDecoder())
	return struct {
		io.Reader
		io.Closer
	}{transform.NewReader(f, dec), f}, nil
}

func parsePlainTextRecords(path string) ([]Record, error) {
	f, err := openText(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, Record{ID: strconv.Itoa(len(out) + 1), Name: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func parseDelimitedRecords(path string, comma rune, opts InputOptions) ([]Record, error) {
	f, err := openText(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := newDelimitedReader(f, comma).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	layout, err := layoutColumns(cleanRow(rows[0]), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if layout.header {
		rows = rows[1:]
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		name := cellAt(row, layout.name)
		if name == "" {
			continue
		}
		rec := Record{
			Name:  name,
			ID:    cellAt(row, layout.id),
			Group: cellAt(row, layout.group),
		}
		if layout.id < 0 {
			rec.ID = strconv.Itoa(len(records) + 1)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanCell(row[idx])
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

// columnLayout says where each record field lives; -1 marks a field the file
// does not carry.
type columnLayout struct {
	name   int
	id     int
	group  int
	header bool
}

// layoutColumns works out the layout from the first row of a file. The row is
// a header when at least one field is found in it by name. Otherwise it is
// data: names come from the first column and IDs from the second, if any.
func layoutColumns(first []string, opts InputOptions) (columnLayout, error) {
	aliases := getColumnCandidates()
	layout := columnLayout{name: -1, id: -1, group: -1}
	fields := []struct {
		dst     *int
		spec    string
		aliases []string
	}{
		{&layout.name, opts.NameColumn, aliases.Name},
		{&layout.id, opts.IDColumn, aliases.ID},
		{&layout.group, opts.GroupColumn, aliases.Group},
	}
	for _, f := range fields {
		idx, named, err := locateColumn(first, f.spec, f.aliases)
		if err != nil {
			return layout, err
		}
		*f.dst = idx
		layout.header = layout.header || named
	}
	if layout.name >= 0 {
		return layout, nil
	}
	if layout.header {
		return layout, errors.New("no name column found")
	}
	if len(first) > 0 {
		layout.name = 0
	}
	if layout.id < 0 && len(first) > 1 {
		layout.id = 1
	}
	return layout, nil
}

// locateColumn resolves one field. spec is a header name or a 1-based "#N";
// an empty spec falls back to the known aliases. named reports whether the
// column was found by its header cell.
func locateColumn(row []string, spec string, aliases []string) (idx int, named bool, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		idx = findColumn(row, aliases)
		return idx, idx >= 0, nil
	}
	if idx = findColumn(row, []string{spec}); idx >= 0 {
		return idx, true, nil
	}
	if !strings.HasPrefix(spec, "#") {
		return -1, false, fmt.Errorf("column %q not found", spec)
	}
	n, err := strconv.Atoi(strings.TrimSpace(spec[1:]))
	if err != nil || n < 1 {
		return -1, false, fmt.Errorf("invalid column index %q, want #1 or above", spec)
	}
	if n > len(row) {
		return -1, false, fmt.Errorf("column index %s is out of range", spec)
	}
	return n - 1, false, nil
}

func (l columnLayout) label(row []string, idx int) string {
	if idx < 0 {
		return ""
	}
	if l.header && idx < len(row) && row[idx] != "" {
		return row[idx]
	}
	return "#" + strconv.Itoa(idx+1)
}

// InspectColumns reads the first row of a CSV or TSV file and reports which
// columns LoadRecords would use with opts. Plain text files yield an empty
// report.
func InspectColumns(path string, opts InputOptions) (ColumnReport, error) {
	var report ColumnReport
	comma, ok := delimiterFor(path)
	if !ok {
		return report, nil
	}
	f, err := openText(path)
	if err != nil {
		return report, err
	}
	defer f.Close()
	row, err := newDelimitedReader(f, comma).Read()
	if errors.Is(err, io.EOF) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	report.Columns = cleanRow(row)
	layout, err := layoutColumns(report.Columns, opts)
	if err != nil {
		return report, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	report.HasHeader = layout.header
	report.Name = layout.label(report.Columns, layout.name)
	report.ID = layout.label(report.Columns, layout.id)
	report.Group = layout.label(report.Columns, layout.group)
	return report, nil
}
