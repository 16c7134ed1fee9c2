package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/reviewflow/internal/domain"
)

// ExportFormat selects the file type produced by Export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportFile is a generated download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var exportHeader = []string{
	"ID", "Customer Name", "Customer Email", "Customer Phone",
	"Rating", "Google Review", "Feedback", "Redirect Opened", "Created At",
}

// Export renders a tenant's reviews as a spreadsheet. The scope rules of
// the repository apply, so a tenant user only ever exports their own data.
func (s *ReviewService) Export(scope domain.Scope, tenantID string, filter domain.ReviewFilter, format ExportFormat) (*ExportFile, error) {
	filter.Limit = 0 // exports are unpaginated
	reviews, err := s.reviewRepo.List(scope, tenantID, filter)
	if err != nil {
		return nil, err
	}

	stamp := time.Now().Format("2006-01-02")
	switch format {
	case ExportXLSX:
		data, err := exportXLSX(reviews)
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("reviews-%s.xlsx", stamp),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	case ExportCSV, "":
		data, err := exportCSV(reviews)
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("reviews-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func exportRow(r *domain.Review) []string {
	return []string{
		r.ID,
		r.CustomerName,
		r.CustomerEmail,
		r.CustomerPhone,
		strconv.Itoa(r.Rating),
		strconv.FormatBool(r.GoogleReview),
		r.Feedback,
		strconv.FormatBool(r.RedirectOpened),
		r.CreatedAt.Format(time.RFC3339),
	}
}

func exportCSV(reviews []*domain.Review) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if err := w.Write(exportRow(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportXLSX(reviews []*domain.Review) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Reviews"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for col, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, r := range reviews {
		for col, v := range exportRow(r) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
