package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"invoicedash/internal"
	"invoicedash/internal/normalize"
	"invoicedash/internal/util"
)

// KeySourceMessageID links an ingested document to the mail it came from.
const KeySourceMessageID = "source_message_id"

// requiredFields must be found for a message to become an invoice.
var requiredFields = []string{normalize.KeyInvoiceNumber, normalize.KeyTotal}

type Extraction struct {
	Subject  string
	Record   internal.RawRecord
	FileName string
	PDFPath  string
	Missing  []string
	Warnings []string
}

// Empty reports whether nothing invoice-like was found.
func (e Extraction) Empty() bool {
	return e.PDFPath == "" && len(e.Record) == 0
}

// ExtractRecord parses one RFC 822 message into a raw invoice record. PDF
// attachments are saved under pdfDir as <sha256>.pdf and their text is read
// together with the message body and any .xlsx attachment.
func ExtractRecord(raw []byte, pdfDir string) (Extraction, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse mime: %w", err)
	}

	out := Extraction{
		Subject: env.GetHeader("Subject"),
		Record:  internal.RawRecord{},
	}
	texts := []string{env.Text}
	var sheetName string

	for _, att := range append(env.Attachments, env.Inlines...) {
		if isSpreadsheet(att) {
			lines, err := sheetLines(att.Content)
			if err != nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", att.FileName, err))
				continue
			}
			texts = append(texts, strings.Join(lines, "\n"))
			if sheetName == "" {
				sheetName = strings.TrimSpace(att.FileName)
			}
			continue
		}
		if !isPDF(att) {
			continue
		}
		path, err := savePDF(pdfDir, att.Content)
		if err != nil {
			return Extraction{}, err
		}
		text, err := pdfText(att.Content)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", att.FileName, err))
		}
		texts = append(texts, text)
		if out.PDFPath == "" {
			out.PDFPath = path
			out.FileName = strings.TrimSpace(att.FileName)
		}
	}

	if out.FileName == "" {
		out.FileName = sheetName
	}

	var lines []string
	for _, text := range texts {
		lines = append(lines, util.SplitLines(text)...)
	}
	parseFields(lines, out.Record)

	if env.HTML != "" {
		items := parseItemTable(env.HTML)
		for i, item := range items {
			desc, qty, rate, amount := normalize.ItemKeys(i)
			out.Record[desc] = item.Description
			out.Record[qty] = item.Quantity
			out.Record[rate] = item.Rate
			out.Record[amount] = item.Amount
		}
	}

	if len(out.Record) > 0 && out.FileName != "" {
		out.Record[normalize.KeyFileName] = out.FileName
	}
	for _, key := range requiredFields {
		if _, ok := out.Record[key]; !ok {
			out.Missing = append(out.Missing, key)
		}
	}
	return out, nil
}

func isPDF(part *enmime.Part) bool {
	return strings.EqualFold(part.ContentType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(part.FileName), ".pdf")
}

func savePDF(dir string, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, hex.EncodeToString(sum[:])+".pdf")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", fmt.Errorf("save pdf: %w", err)
		}
	}
	return path, nil
}

func pdfText(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

var (
	descProbes   = []string{"description", "descripción", "descripcion", "concepto", "concept", "item", "detalle"}
	qtyProbes    = []string{"qty", "quantity", "cantidad", "cant", "hours", "horas"}
	rateProbes   = []string{"rate", "unit price", "price", "precio", "tarifa"}
	amountProbes = []string{"amount", "importe", "monto", "total"}
	summaryRows  = []string{"subtotal", "total", "tax", "iva", "discount", "descuento"}
)

// parseItemTable reads the first HTML table whose header names a description
// column and at least one numeric column.
func parseItemTable(html string) []internal.Item {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []internal.Item
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}

		var headers []string
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, cell.Text())
		})
		descIdx := util.FindHeaderIndex(headers, descProbes)
		qtyIdx := util.FindHeaderIndex(headers, qtyProbes)
		rateIdx := util.FindHeaderIndex(headers, rateProbes)
		amountIdx := util.FindHeaderIndex(headers, amountProbes)
		if descIdx < 0 || (qtyIdx < 0 && rateIdx < 0 && amountIdx < 0) {
			return true
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			desc := cell(cells, descIdx)
			if desc == "" || isSummaryRow(desc) {
				return
			}
			qty, hasQty := util.ParseAmount(cell(cells, qtyIdx))
			rate, hasRate := util.ParseAmount(cell(cells, rateIdx))
			amount, hasAmount := util.ParseAmount(cell(cells, amountIdx))
			if !hasQty && !hasRate && !hasAmount {
				return
			}
			if !hasQty {
				qty = 1
			}
			if !hasAmount {
				amount = qty * rate
			}
			out = append(out, internal.Item{Description: desc, Quantity: qty, Rate: rate, Amount: amount})
		})
		return len(out) == 0
	})
	return out
}

func cell(cells []string, idx int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}

func isSummaryRow(desc string) bool {
	folded := util.Fold(desc)
	for _, s := range summaryRows {
		if strings.HasPrefix(folded, s) {
			return true
		}
	}
	return false
}
