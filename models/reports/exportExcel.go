package reports

import (
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/xuri/excelize/v2"
)

const (
	reviewSheet     = "Review"
	candidatesSheet = "Candidates"
)

var reviewHeadings = []string{
	"BatchId", "BatchNumber", "DateTime", "Client", "Formula", "TotalVolume",
	"Operator", "LinkState", "Confidence", "DeliveryId", "SourceFile", "SourceLine",
}

var candidateHeadings = []string{
	"BatchId", "BatchNumber", "Rank", "DeliveryId", "Confidence",
	"DateScore", "ClientScore", "VolumeScore", "FormulaScore",
}

// NewReviewWorkbook lays out pending and unmatched batches on one sheet and
// their ranked candidates on a second.
func NewReviewWorkbook(batches []*models.BatchRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reviewSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(candidatesSheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := writeRow(f, reviewSheet, 1, toCells(reviewHeadings)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRow(f, candidatesSheet, 1, toCells(candidateHeadings)); err != nil {
		f.Close()
		return nil, err
	}

	candidateRow := 2
	for i, b := range batches {
		values := []interface{}{
			b.ID,
			b.BatchNumber,
			b.BatchTime.Format("2006-01-02 15:04:05"),
			b.ClientName,
			b.FormulaCode,
			b.TotalVolume.InexactFloat64(),
			b.Operator,
			string(b.LinkState),
			b.LinkConfidence,
			deliveryCell(b.DeliveryId),
			b.SourceFile,
			b.SourceLine,
		}
		if err := writeRow(f, reviewSheet, i+2, values); err != nil {
			f.Close()
			return nil, err
		}
		for _, c := range b.Candidates {
			values := []interface{}{
				b.ID, b.BatchNumber, c.Rank, c.DeliveryId, c.Confidence,
				c.DateScore, c.ClientScore, c.VolumeScore, c.FormulaScore,
			}
			if err := writeRow(f, candidatesSheet, candidateRow, values); err != nil {
				f.Close()
				return nil, err
			}
			candidateRow++
		}
	}
	return f, nil
}

// WriteReviewWorkbook streams the workbook as .xlsx.
func WriteReviewWorkbook(w io.Writer, batches []*models.BatchRecord) error {
	f, err := NewReviewWorkbook(batches)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func SaveReviewWorkbook(filename string, batches []*models.BatchRecord) error {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return fmt.Errorf("invalid file name %q: only .xlsx is supported", filename)
	}
	f, err := NewReviewWorkbook(batches)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}

func writeRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(headings []string) []interface{} {
	out := make([]interface{}, len(headings))
	for i, h := range headings {
		out[i] = h
	}
	return out
}

func deliveryCell(id *int) interface{} {
	if id == nil {
		return ""
	}
	return utils.DereferencePtr(id, 0)
}
