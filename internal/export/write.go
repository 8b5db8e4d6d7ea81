package export

import (
	"bytes"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
)

// SheetName is the worksheet holding the rows in the XLSX export.
const SheetName = "Leads"

// CSV encodes rows with a header line.
func CSV(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, eris.New("export: no rows")
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode csv")
	}
	return data, nil
}

// WriteCSV writes rows to path and returns the encoded bytes.
func WriteCSV(path string, rows []Row) ([]byte, error) {
	data, err := CSV(rows)
	if err != nil {
		return nil, err
	}
	if err := checkpoint.WriteFile(path, data); err != nil {
		return nil, eris.Wrap(err, "export: write csv")
	}
	return data, nil
}

// WriteXLSX writes rows to a single-sheet workbook at path.
func WriteXLSX(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Headers)
	for _, r := range rows {
		addRow(sheet, r.cells())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return eris.Wrap(err, "export: encode xlsx")
	}
	if err := checkpoint.WriteFile(path, buf.Bytes()); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
