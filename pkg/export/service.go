package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/subscription"
)

// Service renders the operator's accounts report as an Excel workbook.
type Service struct {
	now func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{now: time.Now}
}

// SetClock overrides the time source in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// WriteAccountsReport writes one row per account with its admin and
// subscription state.
func (s *Service) WriteAccountsReport(w io.Writer, list []accounts.Account) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Accounts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	headers := []string{"ID", "Email", "Username", "Admin", "Applied", "Points", "Subscription", "Expires At", "Created At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	now := s.now()
	for i, acct := range list {
		row := i + 2
		window := subscription.Evaluate(now, acct.SubscriptionExpiresAt)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), acct.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), acct.Email)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), acct.Username)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), acct.IsAdmin)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), acct.IsApplied)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), acct.PointsBalance)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), string(window.Status))
		if acct.SubscriptionExpiresAt != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), acct.SubscriptionExpiresAt.UTC().Format("2006-01-02 15:04"))
		}
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), acct.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	for col := 'A'; col <= 'I'; col++ {
		f.SetColWidth(sheetName, string(col), string(col), 18)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
