package service

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReportService handles the spreadsheet surfaces: payment report export and
// bulk schedule import.
type ReportService struct {
	paymentRepo *repository.PaymentRepository
}

func NewReportService(paymentRepo *repository.PaymentRepository) *ReportService {
	return &ReportService{paymentRepo: paymentRepo}
}

const reportSheet = "Payments"

var reportHeader = []string{"ID", "Payee", "Amount", "Due Date", "Status", "Method", "Created At"}

// Export writes the user's payments to an xlsx workbook.
func (s *ReportService) Export(userID uint) (*bytes.Buffer, error) {
	payments, err := s.paymentRepo.ListAllByUser(userID)
	if err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()
	idx, err := f.NewSheet(reportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	for col, h := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(reportSheet, cell, h)
	}
	for row, p := range payments {
		values := []interface{}{
			p.ID,
			p.Payee,
			p.Amount.StringFixed(2),
			p.DueDate.Format("2006-01-02"),
			p.Status,
			p.Method,
			p.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(reportSheet, cell, v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// ImportError describes one rejected spreadsheet row.
type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Import reads scheduled payments from an uploaded workbook. Expected
// columns: Payee, Amount, Due Date (YYYY-MM-DD), Method (optional). The
// first row is treated as a header. Rows are validated independently; bad
// rows are reported, good rows are created.
func (s *ReportService) Import(userID uint, r io.Reader) (created int, errs []ImportError, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, nil, err
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rowNum := i + 1
		if len(row) < 3 {
			errs = append(errs, ImportError{Row: rowNum, Message: "expected at least 3 columns (payee, amount, due date)"})
			continue
		}
		payee := row[0]
		if payee == "" {
			errs = append(errs, ImportError{Row: rowNum, Message: "payee is required"})
			continue
		}
		amount, aerr := decimal.NewFromString(row[1])
		if aerr != nil || !amount.IsPositive() {
			errs = append(errs, ImportError{Row: rowNum, Message: "amount must be a positive number"})
			continue
		}
		dueDate, derr := time.Parse("2006-01-02", row[2])
		if derr != nil {
			errs = append(errs, ImportError{Row: rowNum, Message: "due date must be YYYY-MM-DD"})
			continue
		}
		method := domain.PaymentMethodOther
		if len(row) > 3 && row[3] != "" {
			method = row[3]
		}
		p := &models.Payment{
			UserID:  userID,
			Payee:   payee,
			Amount:  amount,
			DueDate: dueDate,
			Method:  method,
			Status:  domain.PaymentScheduled,
		}
		if cerr := s.paymentRepo.Create(p); cerr != nil {
			errs = append(errs, ImportError{Row: rowNum, Message: "could not save payment"})
			continue
		}
		created++
	}
	return created, errs, nil
}
