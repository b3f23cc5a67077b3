package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// row is one data line keyed by canonical header name.
type row struct {
	line   int
	fields map[string]string
}

func (r row) get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// streamRows parses path (CSV or XLSX by extension) and sends each data row
// on the returned channel. Both channels close when parsing ends; the error
// channel carries at most one error.
func streamRows(ctx context.Context, path, sheet string) (<-chan row, <-chan error) {
	rowCh := make(chan row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		var err error
		emit := func(r row) bool {
			select {
			case rowCh <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if formatOf(path) == "xlsx" {
			err = readXLSX(path, sheet, emit)
		} else {
			err = readCSV(path, emit)
		}
		if err == nil && ctx.Err() != nil {
			err = eris.Wrap(ctx.Err(), "importer: parse cancelled")
		}
		if err != nil {
			errCh <- err
		}
	}()

	return rowCh, errCh
}

func readCSV(path string, emit func(row) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "importer: open csv")
	}
	defer f.Close() //nolint:errcheck

	br := bufio.NewReaderSize(f, 64*1024)
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		_, _ = br.Discard(3)
	}
	// Peek returns what it could read along with any short-read error.
	peek, _ := br.Peek(br.Size())

	var src io.Reader = br
	if !validUTF8Prefix(peek) {
		// Registry extracts are often published in ISO-8859-1.
		src = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
	}

	r := csv.NewReader(src)
	r.Comma = sniffDelimiter(peek)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "importer: read csv header")
	}
	keys := canonicalHeader(header)

	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "importer: read csv line %d", line)
		}
		if blank(rec) {
			continue
		}
		if !emit(toRow(line, keys, rec)) {
			return nil
		}
	}
}

func readXLSX(path, sheetName string, emit func(row) bool) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrap(err, "importer: open xlsx")
	}

	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return eris.Errorf("importer: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) == 0:
		return eris.New("importer: workbook has no sheets")
	default:
		sheet = f.Sheets[0]
	}

	var keys []string
	for i, r := range sheet.Rows {
		if r == nil {
			continue
		}
		cells := make([]string, len(r.Cells))
		for j, c := range r.Cells {
			cells[j] = c.String()
		}
		if keys == nil {
			if blank(cells) {
				continue
			}
			keys = canonicalHeader(cells)
			continue
		}
		if blank(cells) {
			continue
		}
		if !emit(toRow(i+1, keys, cells)) {
			return nil
		}
	}
	return nil
}

func toRow(line int, keys, rec []string) row {
	fields := make(map[string]string, len(keys))
	for i, k := range keys {
		if i < len(rec) && k != "" {
			fields[k] = rec[i]
		}
	}
	return row{line: line, fields: fields}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// canonicalHeader maps "Número INMETRO" to "numero_inmetro".
func canonicalHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = fold(h, '_')
	}
	return out
}

// fold lowercases s, strips accents and joins runs of letters and digits
// with sep.
func fold(s string, sep byte) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte(sep)
			}
			b.WriteRune(r)
			pending = false
			continue
		}
		pending = true
	}
	return b.String()
}

// sniffDelimiter picks the most frequent of ; , and tab on the first line.
func sniffDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(sample, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// validUTF8Prefix is utf8.Valid tolerant of a rune cut at the end of b.
func validUTF8Prefix(b []byte) bool {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}
