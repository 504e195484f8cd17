package services

import (
	"fmt"
	"time"

	"github.com/mkhoshpour/susanoo/models"
	"github.com/xuri/excelize/v2"
)

// ExportService renders payout ledgers for download
type ExportService interface {
	PayoutsToXLSX(payouts []*models.Payout) ([]byte, error)
}

// XLSXExportService implements ExportService with excelize
type XLSXExportService struct{}

// NewXLSXExportService creates a new xlsx export service
func NewXLSXExportService() ExportService {
	return &XLSXExportService{}
}

var payoutExportHeaders = []string{
	"ID", "Pull Payment", "Method", "Destination", "Amount", "Currency",
	"Method Amount", "Rate", "State", "Revision", "Approved At", "Completed At", "Created At",
}

// PayoutsToXLSX renders the payouts as a single-sheet workbook
func (s *XLSXExportService) PayoutsToXLSX(payouts []*models.Payout) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Payouts"
	f.SetSheetName("Sheet1", sheet)

	for i, header := range payoutExportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, p := range payouts {
		pullPayment := ""
		if p.PullPayment != nil {
			pullPayment = p.PullPayment.UUID.String()
		}

		values := []any{
			p.UUID.String(),
			pullPayment,
			p.PaymentMethod,
			p.Destination,
			p.Amount,
			p.Currency,
			p.MethodAmount,
			p.RateLocked,
			string(p.State),
			p.Revision,
			formatExportTime(p.ApprovedAt),
			formatExportTime(p.CompletedAt),
			p.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render payout workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
