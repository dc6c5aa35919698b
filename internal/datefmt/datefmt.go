// Package datefmt renders upstream ISO-8601 timestamps in the station's local
// timezone for reports and e-mails.
package datefmt

import (
	"fmt"
	"time"
	_ "time/tzdata" // the Lambda runtime image ships without zoneinfo

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Europe/London"

const (
	dateLayout     = "02/01/2006"
	timeLayout     = "15:04:05"
	fileDateLayout = "02-01-2006"
	fileTimeLayout = "1504"
)

// Formatter formats timestamps in a fixed location.
type Formatter struct {
	loc *time.Location
}

// New creates a Formatter for the named IANA timezone. An empty name selects
// DefaultTimezone.
func New(timezone string) (Formatter, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Formatter{}, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return Formatter{loc: loc}, nil
}

// MustNew is New for package-level defaults and tests.
func MustNew(timezone string) Formatter {
	f, err := New(timezone)
	if err != nil {
		panic(err)
	}
	return f
}

// Location returns the formatter's location.
func (f Formatter) Location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

// Date formats ts as DD/MM/YYYY.
func (f Formatter) Date(ts string) (string, error) {
	return f.format(ts, dateLayout)
}

// Time formats ts as HH:mm:ss.
func (f Formatter) Time(ts string) (string, error) {
	return f.format(ts, timeLayout)
}

// FileStamp returns the DD-MM-YYYY and HHmm parts used in report file names.
func (f Formatter) FileStamp(ts string) (date, hm string, err error) {
	t, err := types.ParseTimestamp(ts)
	if err != nil {
		return "", "", err
	}
	t = t.In(f.Location())
	return t.Format(fileDateLayout), t.Format(fileTimeLayout), nil
}

func (f Formatter) format(ts, layout string) (string, error) {
	t, err := types.ParseTimestamp(ts)
	if err != nil {
		return "", err
	}
	return t.In(f.Location()).Format(layout), nil
}
