package report

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
)

// templates caches template bytes per source for the life of the process.
// Cached slices are never written to; every render opens its own workbook
// from them.
var templates = struct {
	mu    sync.Mutex
	bytes map[string][]byte
}{bytes: make(map[string][]byte)}

// loadTemplate returns the template workbook bytes, reading path or, when path
// is empty, building the default template.
func loadTemplate(path string, layout Layout) ([]byte, error) {
	key := path
	if key == "" {
		// Generated templates depend on every coordinate of the layout.
		key = fmt.Sprintf("default:%+v", layout)
	}

	templates.mu.Lock()
	defer templates.mu.Unlock()

	if b, ok := templates.bytes[key]; ok {
		return b, nil
	}

	var (
		b   []byte
		err error
	)
	if path != "" {
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", path, err)
		}
	} else {
		b, err = buildDefaultTemplate(layout)
		if err != nil {
			return nil, fmt.Errorf("building default template: %w", err)
		}
	}
	templates.bytes[key] = b
	return b, nil
}

type label struct {
	cell string
	text string
}

// buildDefaultTemplate lays out the labels of the ATF report: a site visit
// block, a declaration block and the activity table header.
func buildDefaultTemplate(layout Layout) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := layout.Sheet
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	cols := layout.Columns
	header := layout.ActivityHeaderRow
	labels := []label{
		{"C2", "Authorised Testing Facility - Site Visit Report"},
		{"C8", "Site visit details"},
		{"C10", "Assessor"},
		{"C11", "Date"},
		{"C12", "Start time"},
		{"F10", "Site name"},
		{"F11", "Site number"},
		{"C15", "Declaration"},
		{"C16", "I confirm that the activities listed below took place during this visit."},
		{"C17", "Date"},
		{"F17", "Finish time"},
		{"C22", "Activity details"},
		{cols.Activity + itoa(header), "Activity"},
		{cols.StartTime + itoa(header), "Start time"},
		{cols.FinishTime + itoa(header), "Finish time"},
		{cols.VehicleID + itoa(header), "VRM / Trailer ID"},
		{cols.TestDescription + itoa(header), "Test description"},
		{cols.SeatsAndAxles + itoa(header), "Seats / Axles"},
		{cols.Result + itoa(header), "Result"},
		{cols.CertificateNumber + itoa(header), "Certificate number"},
		{cols.ExpiryDate + itoa(header), "Expiry date"},
	}
	for _, l := range labels {
		if err := f.SetCellStr(sheet, l.cell, l.text); err != nil {
			return nil, fmt.Errorf("writing label %s: %w", l.cell, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "C2", "C2", title); err != nil {
		return nil, err
	}
	for _, cell := range []string{"C8", "C15", "C22"} {
		if err := f.SetCellStyle(sheet, cell, cell, bold); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, cols.Activity+itoa(header), cols.ExpiryDate+itoa(header), bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, cols.Activity, cols.ExpiryDate, 20); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func itoa(i int) string { return strconv.Itoa(i) }
