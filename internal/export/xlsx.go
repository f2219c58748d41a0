package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IdeaRow is one line of the ideas register spreadsheet
type IdeaRow struct {
	ID               string
	Title            string
	Category         string
	Status           string
	Priority         string
	Department       string
	Submitter        string
	Votes            int
	Comments         int
	CostSaved        float64
	RevenueGenerated float64
	CreatedAt        time.Time
}

// LeaderboardEntry is one line of the leaderboard spreadsheet
type LeaderboardEntry struct {
	DisplayName   string
	Department    string
	Submissions   int
	Implemented   int
	VotesReceived int
	ImpactScore   int
}

// IdeasSpreadsheet renders the ideas register as an .xlsx workbook
func IdeasSpreadsheet(rows []IdeaRow) (*Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Ideas"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheet, "A", "A", 12)
	f.SetColWidth(sheet, "B", "B", 40)
	f.SetColWidth(sheet, "C", "G", 14)
	f.SetColWidth(sheet, "H", "I", 10)
	f.SetColWidth(sheet, "J", "L", 16)

	headers := []string{
		"ID", "Title", "Category", "Status", "Priority", "Department",
		"Submitter", "Votes", "Comments", "Cost Saved", "Revenue Generated", "Created",
	}
	for i, header := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), header)
	}
	if err := applyHeaderStyle(f, sheet, len(headers)); err != nil {
		return nil, err
	}

	for i, row := range rows {
		r := i + 2
		f.SetCellValue(sheet, cellRef(1, r), row.ID)
		f.SetCellValue(sheet, cellRef(2, r), row.Title)
		f.SetCellValue(sheet, cellRef(3, r), row.Category)
		f.SetCellValue(sheet, cellRef(4, r), row.Status)
		f.SetCellValue(sheet, cellRef(5, r), row.Priority)
		f.SetCellValue(sheet, cellRef(6, r), row.Department)
		f.SetCellValue(sheet, cellRef(7, r), row.Submitter)
		f.SetCellValue(sheet, cellRef(8, r), row.Votes)
		f.SetCellValue(sheet, cellRef(9, r), row.Comments)
		f.SetCellValue(sheet, cellRef(10, r), row.CostSaved)
		f.SetCellValue(sheet, cellRef(11, r), row.RevenueGenerated)
		f.SetCellValue(sheet, cellRef(12, r), row.CreatedAt.Format("2006-01-02"))
	}

	return writeWorkbook(f, fmt.Sprintf("ideas-%s", time.Now().Format("2006-01-02")))
}

// LeaderboardSpreadsheet renders the contribution leaderboard as an .xlsx workbook
func LeaderboardSpreadsheet(entries []LeaderboardEntry) (*Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Leaderboard"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheet, "A", "A", 8)
	f.SetColWidth(sheet, "B", "C", 24)
	f.SetColWidth(sheet, "D", "G", 16)

	headers := []string{
		"Rank", "Name", "Department", "Submissions", "Implemented", "Votes Received", "Impact Score",
	}
	for i, header := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), header)
	}
	if err := applyHeaderStyle(f, sheet, len(headers)); err != nil {
		return nil, err
	}

	for i, entry := range entries {
		r := i + 2
		f.SetCellValue(sheet, cellRef(1, r), i+1)
		f.SetCellValue(sheet, cellRef(2, r), entry.DisplayName)
		f.SetCellValue(sheet, cellRef(3, r), entry.Department)
		f.SetCellValue(sheet, cellRef(4, r), entry.Submissions)
		f.SetCellValue(sheet, cellRef(5, r), entry.Implemented)
		f.SetCellValue(sheet, cellRef(6, r), entry.VotesReceived)
		f.SetCellValue(sheet, cellRef(7, r), entry.ImpactScore)
	}

	return writeWorkbook(f, fmt.Sprintf("leaderboard-%s", time.Now().Format("2006-01-02")))
}

func applyHeaderStyle(f *excelize.File, sheet string, columns int) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	return f.SetCellStyle(sheet, cellRef(1, 1), cellRef(columns, 1), style)
}

func writeWorkbook(f *excelize.File, name string) (*Result, error) {
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: name + ".xlsx",
		MimeType: xlsxMimeType,
	}, nil
}

func cellRef(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
