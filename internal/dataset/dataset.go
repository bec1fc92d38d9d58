package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"vargento/internal/domain"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
	EncodingXLSX   = "xlsx"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is a parsed dataset plus what was learned while reading it.
type File struct {
	Path      string
	Encoding  string
	Header    []string
	Records   []domain.IncidentRecord
	TotalRows int
	Dropped   int
}

// Load reads the incident table at path and returns the cleaned records.
func Load(path string, cols Columns) ([]domain.IncidentRecord, error) {
	f, err := LoadFile(path, cols)
	if err != nil {
		return nil, err
	}
	return f.Records, nil
}

// LoadFile is Load with read statistics. Rows with a blank description or
// decision are dropped and counted.
func LoadFile(path string, cols Columns) (*File, error) {
	cols = cols.withDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		reason := "cannot read file"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "file not found"
		}
		return nil, &DataLoadError{Path: path, Reason: reason, Err: err}
	}

	var rows [][]string
	var encoding string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		rows, encoding, err = readDelimited(data, filepath.Ext(path))
	case ".xlsx", ".xlsm":
		rows, err = readSpreadsheet(data)
		encoding = EncodingXLSX
	default:
		return nil, &DataLoadError{Path: path, Reason: "unsupported file type " + filepath.Ext(path) + " (want .csv or .xlsx)"}
	}
	if err != nil {
		return nil, &DataLoadError{Path: path, Reason: "cannot parse file", Err: err}
	}
	if len(rows) == 0 {
		return nil, &DataLoadError{Path: path, Reason: "file has no header row"}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	descIdx, decIdx := cols.resolve(header)
	if descIdx < 0 {
		return nil, &DataLoadError{
			Path:   path,
			Reason: "no description column (tried " + strings.Join(cols.Description, ", ") + ")",
			Found:  header,
		}
	}
	if decIdx < 0 {
		return nil, &DataLoadError{
			Path:   path,
			Reason: "no decision column " + cols.Decision,
			Found:  header,
		}
	}

	out := &File{Path: path, Encoding: encoding, Header: header}
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		out.TotalRows++
		desc := cell(row, descIdx)
		decision := cell(row, decIdx)
		if desc == "" || decision == "" {
			out.Dropped++
			continue
		}
		out.Records = append(out.Records, domain.IncidentRecord{Description: desc, Decision: decision})
	}
	return out, nil
}

// decodeText returns data as UTF-8, falling back to Latin-1 when the bytes
// are not valid UTF-8.
func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(decoded), EncodingLatin1, nil
}

func readDelimited(data []byte, ext string) ([][]string, string, error) {
	text, encoding, err := decodeText(data)
	if err != nil {
		return nil, "", err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = detectDelimiter(text, ext)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}
		rows = append(rows, rec)
	}
	return rows, encoding, nil
}

// detectDelimiter picks the most frequent of comma, semicolon and tab in the
// header line. Spreadsheets exported with a Spanish locale use semicolons.
func detectDelimiter(text, ext string) rune {
	if strings.EqualFold(ext, ".tsv") {
		return '\t'
	}
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readSpreadsheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
