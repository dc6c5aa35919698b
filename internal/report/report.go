// Package report renders a visit timeline into the ATF site visit xlsx report.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dwsmith1983/atfreport/internal/datefmt"
	"github.com/dwsmith1983/atfreport/pkg/types"
)

// Renderer fills the report template for a visit.
type Renderer struct {
	formatter    datefmt.Formatter
	layout       Layout
	templatePath string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTemplateFile reads the template from an xlsx file instead of the
// built-in layout.
func WithTemplateFile(path string) Option {
	return func(r *Renderer) { r.templatePath = path }
}

// WithLayout overrides the cell coordinates used when filling the template.
func WithLayout(l Layout) Option {
	return func(r *Renderer) { r.layout = l }
}

// NewRenderer creates a Renderer that formats timestamps with formatter.
func NewRenderer(formatter datefmt.Formatter, opts ...Option) *Renderer {
	r := &Renderer{formatter: formatter, layout: DefaultLayout()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// FileName returns the report file name for a visit:
// ATFReport_<DD-MM-YYYY>_<HHmm>_<pNumber>_<tester>.xlsx.
func (r *Renderer) FileName(visit types.Visit) (string, error) {
	date, hm, err := r.formatter.FileStamp(visit.StartTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ATFReport_%s_%s_%s_%s.xlsx", date, hm, visit.TestStationPNumber, visit.TesterName), nil
}

// Render fills a copy of the template with the visit header and one row per
// test event. Wait events are not part of the spreadsheet.
func (r *Renderer) Render(visit types.Visit, events []types.ActivityEvent) (*types.ReportArtifact, error) {
	artifact, err := r.render(visit, events)
	if err != nil {
		return nil, fmt.Errorf("%w %w", types.ErrReportGenerationFailed, err)
	}
	return artifact, nil
}

func (r *Renderer) render(visit types.Visit, events []types.ActivityEvent) (*types.ReportArtifact, error) {
	name, err := r.FileName(visit)
	if err != nil {
		return nil, fmt.Errorf("building file name: %w", err)
	}

	tmpl, err := loadTemplate(r.templatePath, r.layout)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(tmpl))
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := r.fillHeader(f, visit); err != nil {
		return nil, err
	}

	row := r.layout.FirstActivityRow
	for i, ev := range events {
		if ev.Kind != types.EventTest {
			continue
		}
		if ev.Test == nil {
			return nil, fmt.Errorf("%w: event %d has no test payload", types.ErrMalformedActivityEvent, i)
		}
		if err := r.fillRow(f, row, ev.Test); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", row, err)
		}
		row++
	}

	if err := f.SetDocProps(&excelize.DocProperties{Creator: Creator}); err != nil {
		return nil, fmt.Errorf("setting document properties: %w", err)
	}
	if err := f.SetAppProps(&excelize.AppProperties{Company: Company}); err != nil {
		return nil, fmt.Errorf("setting app properties: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return &types.ReportArtifact{FileName: name, Content: buf.Bytes()}, nil
}

func (r *Renderer) fillHeader(f *excelize.File, visit types.Visit) error {
	startDate, err := r.formatter.Date(visit.StartTime)
	if err != nil {
		return err
	}
	startTime, err := r.formatter.Time(visit.StartTime)
	if err != nil {
		return err
	}
	endDate, err := r.formatter.Date(visit.EndTime)
	if err != nil {
		return err
	}
	endTime, err := r.formatter.Time(visit.EndTime)
	if err != nil {
		return err
	}

	l := r.layout
	cells := map[string]string{
		l.Assessor:        visit.TesterName,
		l.Date:            startDate,
		l.SiteName:        visit.TestStationName,
		l.SiteNumber:      visit.TestStationPNumber,
		l.StartTime:       startTime,
		l.DeclarationDate: endDate,
		l.FinishTime:      endTime,
	}
	for cell, v := range cells {
		if err := f.SetCellStr(l.Sheet, cell, v); err != nil {
			return fmt.Errorf("writing %s: %w", cell, err)
		}
	}
	return nil
}

func (r *Renderer) fillRow(f *excelize.File, row int, unit *types.TestUnit) error {
	start, err := r.formatter.Time(unit.TestType.TestTypeStartTimestamp)
	if err != nil {
		return err
	}
	end, err := r.formatter.Time(unit.TestType.TestTypeEndTimestamp)
	if err != nil {
		return err
	}
	var expiry string
	if unit.TestType.TestExpiryDate != "" {
		if expiry, err = r.formatter.Date(unit.TestType.TestExpiryDate); err != nil {
			return err
		}
	}
	var seatsOrAxles string
	if n, ok := unit.SeatsOrAxles(); ok {
		seatsOrAxles = strconv.Itoa(n)
	}

	c := r.layout.Columns
	values := []struct {
		col, val string
	}{
		{c.Activity, types.LabelTest},
		{c.StartTime, start},
		{c.FinishTime, end},
		{c.VehicleID, unit.VehicleID()},
		{c.TestDescription, unit.TestType.Description()},
		{c.SeatsAndAxles, seatsOrAxles},
		{c.Result, unit.TestType.TestResult},
		{c.CertificateNumber, strings.Join(unit.TestType.CertificateNumbers(), ", ")},
		{c.ExpiryDate, expiry},
	}
	for _, v := range values {
		if err := f.SetCellStr(r.layout.Sheet, v.col+strconv.Itoa(row), v.val); err != nil {
			return err
		}
	}
	return nil
}
