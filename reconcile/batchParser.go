package reconcile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParsedFile is the header plus every data line that matched its width.
type ParsedFile struct {
	Headers []string `json:"headers"`
	Rows    []RawRow `json:"rows"`
	// Skipped counts non-blank lines dropped for a field-count mismatch.
	Skipped int `json:"skipped"`
}

const utf8BOM = "\ufeff"

// DetectDelimiter looks at the header line: semicolon, then tab, else comma.
func DetectDelimiter(firstLine string) rune {
	switch {
	case strings.ContainsRune(firstLine, ';'):
		return ';'
	case strings.ContainsRune(firstLine, '\t'):
		return '\t'
	default:
		return ','
	}
}

// SplitLine splits on delim outside double quotes. A quote toggles the quoted
// state and is not kept in the field.
func SplitLine(line string, delim rune) []string {
	fields := make([]string, 0, 16)
	var field strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(field.String()))
	return fields
}

// ParseText parses delimited text. The first non-blank line is the header.
func ParseText(text string) (*ParsedFile, error) {
	text = strings.TrimPrefix(text, utf8BOM)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	headerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	delim := DetectDelimiter(lines[headerIdx])
	headers := SplitLine(strings.TrimRight(lines[headerIdx], "\r"), delim)

	parsed := &ParsedFile{Headers: headers, Rows: make([]RawRow, 0, len(lines)-headerIdx-1)}
	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		values := SplitLine(line, delim)
		if len(values) != len(headers) {
			parsed.Skipped++
			continue
		}
		parsed.Rows = append(parsed.Rows, zipRow(i+1, headers, values))
	}
	return parsed, nil
}

// ParseXlsx reads the first sheet of a workbook. Cells are read unformatted;
// a numeric DateTime cell is an Excel serial date and is rendered as
// "2006-01-02 15:04:05". The reader drops trailing empty cells, so short rows
// are padded to the header width and only rows with extra non-empty cells
// are skipped.
func ParseXlsx(data []byte) (*ParsedFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read sheet: %v", ErrUnreadableFile, err)
	}

	headerIdx := -1
	for i, row := range rows {
		if !blankCells(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmptyInput
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	headers := trimTrailingBlank(trimCells(rows[headerIdx]))
	dateCol := headerIndex(headers, ColDateTime)
	parsed := &ParsedFile{Headers: headers, Rows: make([]RawRow, 0, len(rows)-headerIdx-1)}
	for i := headerIdx + 1; i < len(rows); i++ {
		if blankCells(rows[i]) {
			continue
		}
		values := trimTrailingBlank(trimCells(rows[i]))
		if len(values) > len(headers) {
			parsed.Skipped++
			continue
		}
		for len(values) < len(headers) {
			values = append(values, "")
		}
		if dateCol >= 0 {
			values[dateCol] = excelDateText(values[dateCol], date1904)
		}
		parsed.Rows = append(parsed.Rows, zipRow(i+1, headers, values))
	}
	return parsed, nil
}

// ParseFile picks the reader by file extension.
func ParseFile(fileName string, data []byte) (*ParsedFile, error) {
	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		return ParseXlsx(data)
	}
	return ParseText(string(data))
}

func zipRow(line int, headers, values []string) RawRow {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		fields[h] = values[i]
	}
	return RawRow{Line: line, Fields: fields, headers: headers}
}

// headerIndex finds col exactly, then case-insensitively in header order.
func headerIndex(headers []string, col string) int {
	for i, h := range headers {
		if h == col {
			return i
		}
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), col) {
			return i
		}
	}
	return -1
}

// excelDateText turns a serial date into text the row validator accepts.
// Text cells pass through unchanged.
func excelDateText(cell string, date1904 bool) string {
	serial, err := strconv.ParseFloat(cell, 64)
	if err != nil || serial <= 0 {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return cell
	}
	return t.Format("2006-01-02 15:04:05")
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func trimTrailingBlank(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}

func blankCells(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
