// Package importer reads borrower lists from spreadsheets. The first sheet
// of an XLSX workbook is read; CSV (comma or semicolon separated) is accepted
// too. Rows without a name or a readable date of birth are dropped.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Row is one person read from a spreadsheet.
type Row struct {
	Name        string    `json:"name"`
	DateOfBirth time.Time `json:"date_of_birth"`
}

// ErrMissingColumns is returned when the header has no name or no date of birth column.
var ErrMissingColumns = errors.New("spreadsheet needs a name and a date of birth column")

// ErrEmpty is returned for a spreadsheet without a header row.
var ErrEmpty = errors.New("spreadsheet is empty")

var (
	nameHeaders = map[string]bool{"jméno": true, "name": true}
	dobHeaders  = map[string]bool{"datum narození": true, "date_of_birth": true, "dob": true}
)

var dateLayouts = []string{
	"2006-01-02",
	"2.1.2006",
	"02.01.2006",
	"2. 1. 2006",
	"1/2/2006",
	"01/02/2006",
	time.RFC3339,
}

// Parse reads rows from an XLSX or CSV document.
func Parse(data []byte) ([]Row, error) {
	var records [][]string
	var err error
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		records, err = readXLSX(data)
	} else {
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	// Raw values keep date cells as serial numbers instead of locale formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		r.Comma = ';'
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	nameCol, dobCol := -1, -1
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		switch {
		case nameHeaders[key] && nameCol < 0:
			nameCol = i
		case dobHeaders[key] && dobCol < 0:
			dobCol = i
		}
	}
	if nameCol < 0 || dobCol < 0 {
		return nil, ErrMissingColumns
	}

	rows := []Row{}
	for _, rec := range records[1:] {
		name := strings.TrimSpace(cell(rec, nameCol))
		rawDOB := strings.TrimSpace(cell(rec, dobCol))
		if name == "" || rawDOB == "" {
			continue
		}
		dob, err := ParseDate(rawDOB)
		if err != nil {
			continue
		}
		rows = append(rows, Row{Name: name, DateOfBirth: dob})
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// ParseDate reads a date of birth written as text or as an Excel serial
// number. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(math.Floor(serial), false)
		if err == nil {
			return day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
