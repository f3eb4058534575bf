package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var catalogSheetHeader = []string{"ID", "Name", "Short Description", "Price", "Image"}

// ReadCatalogSheet parses product rows (Name, Short Description, Price, Image) from an
// XLSX workbook. The first row is a header. An empty sheet name reads the first sheet.
func ReadCatalogSheet(r io.Reader, sheet string) ([]CreateProductInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close()

	if sheet == "" || f.GetSheetIndex(sheet) < 0 {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("no sheets found in XLSX")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	var inputs []CreateProductInput
	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue
		}
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}

		price, err := decimal.NewFromString(cell(2))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price %q: %w", i+1, cell(2), err)
		}
		inputs = append(inputs, CreateProductInput{
			Name:             cell(0),
			ShortDescription: cell(1),
			Price:            price,
			ImageRef:         cell(3),
		})
	}
	return inputs, nil
}

// WriteCatalogSheet writes the catalog as a single-sheet XLSX workbook.
func WriteCatalogSheet(w io.Writer, sheet string, products []model.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Products"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &catalogSheetHeader); err != nil {
		return err
	}

	for i, p := range products {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		price, _ := p.Price.Float64()
		row := []interface{}{p.ID, p.Name, p.ShortDescription, price, p.ImageRef}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
