package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var utf8ByteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// rowSource yields raw records keyed by their normalized header names,
// in original file order.
type rowSource interface {
	// Next returns the next record, or ok=false at end of input.
	Next() (map[string]string, bool, error)
	Close() error
}

// openRows opens the input artifact as a row source based on extension.
func openRows(path string) (rowSource, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return openCSV(path)
	case ".xlsx":
		return openExcel(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// countRows counts the data rows in one streaming pass.
func countRows(path string) (int, error) {
	source, err := openRows(path)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	total := 0
	for {
		_, ok, err := source.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return total, nil
		}
		total++
	}
}

// normalizeHeaders lower-cases and trims header names so field matching
// is case-insensitive.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, value := range raw {
		headers[i] = strings.ToLower(strings.TrimSpace(value))
	}
	return headers
}

type csvSource struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func openCSV(path string) (rowSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}

	// Sniff the encoding from a prefix sample, then rewind and decode
	// the whole stream with a replace-on-error policy.
	probe := make([]byte, encodingProbeSize)
	n, err := file.Read(probe)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("failed to sample csv: %w", err)
	}
	enc := detectEncoding(probe[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to rewind csv: %w", err)
	}

	buffered := bufio.NewReader(decodeReader(file, enc))
	if prefix, err := buffered.Peek(len(utf8ByteOrderMark)); err == nil && bytes.Equal(prefix, utf8ByteOrderMark) {
		_, _ = buffered.Discard(len(utf8ByteOrderMark))
	}

	reader := csv.NewReader(buffered)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, errors.New("file is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	return &csvSource{
		file:    file,
		reader:  reader,
		headers: normalizeHeaders(headerRow),
	}, nil
}

func (s *csvSource) Next() (map[string]string, bool, error) {
	record, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read csv row: %w", err)
	}
	return recordToMap(s.headers, record), true, nil
}

func (s *csvSource) Close() error {
	return s.file.Close()
}

type excelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

func openExcel(path string) (rowSource, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	if !rows.Next() {
		rows.Close()
		file.Close()
		return nil, errors.New("file is empty")
	}
	headerRow, err := rows.Columns()
	if err != nil {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("failed to read xlsx header: %w", err)
	}

	return &excelSource{
		file:    file,
		rows:    rows,
		headers: normalizeHeaders(headerRow),
	}, nil
}

func (s *excelSource) Next() (map[string]string, bool, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, false, fmt.Errorf("failed to read xlsx row: %w", err)
		}
		return nil, false, nil
	}
	record, err := s.rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read xlsx row: %w", err)
	}
	return recordToMap(s.headers, record), true, nil
}

func (s *excelSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}

func recordToMap(headers []string, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, header := range headers {
		if header == "" {
			continue
		}
		if i < len(record) {
			row[header] = record[i]
		} else {
			row[header] = ""
		}
	}
	return row
}
