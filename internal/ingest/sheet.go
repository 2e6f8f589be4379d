package ingest

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"invoicedash/internal/util"
)

func isSpreadsheet(part *enmime.Part) bool {
	name := strings.ToLower(part.FileName)
	return strings.HasSuffix(name, ".xlsx") ||
		part.ContentType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// sheetLines flattens every sheet into "label: value" lines so spreadsheet
// invoices go through the same field rules as text bodies.
func sheetLines(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = util.NormalizeSpaces(c); c != "" {
					cells = append(cells, c)
				}
			}
			switch len(cells) {
			case 0:
			case 1:
				out = append(out, cells[0])
			default:
				out = append(out, cells[0]+": "+strings.Join(cells[1:], " "))
			}
		}
	}
	return out, nil
}
