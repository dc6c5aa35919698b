package report

// Layout gives the cell coordinates of the report template.
type Layout struct {
	Sheet string

	// Site visit details.
	Assessor   string
	Date       string
	SiteName   string
	SiteNumber string
	StartTime  string

	// Declaration.
	DeclarationDate string
	FinishTime      string

	// Activity rows start on FirstActivityRow, one row per test.
	ActivityHeaderRow int
	FirstActivityRow  int
	Columns           RowColumns
}

// RowColumns names the column of each field in an activity row.
type RowColumns struct {
	Activity          string
	StartTime         string
	FinishTime        string
	VehicleID         string
	TestDescription   string
	SeatsAndAxles     string
	Result            string
	CertificateNumber string
	ExpiryDate        string
}

// DefaultLayout is the layout of the ATF report template.
func DefaultLayout() Layout {
	return Layout{
		Sheet:             "ATF Report",
		Assessor:          "D10",
		Date:              "D11",
		SiteName:          "G10",
		SiteNumber:        "G11",
		StartTime:         "D12",
		DeclarationDate:   "D17",
		FinishTime:        "G17",
		ActivityHeaderRow: 24,
		FirstActivityRow:  25,
		Columns: RowColumns{
			Activity:          "C",
			StartTime:         "D",
			FinishTime:        "E",
			VehicleID:         "F",
			TestDescription:   "G",
			SeatsAndAxles:     "H",
			Result:            "I",
			CertificateNumber: "J",
			ExpiryDate:        "K",
		},
	}
}

// Workbook document properties stamped on every report.
const (
	Creator = "Commercial Vehicles Services Beta Team"
	Company = "Drivers and Vehicles Standards Agency"
)
