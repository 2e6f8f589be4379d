package ingest

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/xuri/excelize/v2"
)

const invoiceText = `Invoice number: F-2026-001
Date of issue: 15/01/2026
Due date: 2026-02-15
Billed to: Globex Corp
Company: Acme Ltd
Subtotal: 1.000,00 EUR
IVA 21%: 210,00
Total: 1.210,00 EUR
Staffing: 40%`

const invoiceHTML = `<html><body>
<table>
<tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Amount</th></tr>
<tr><td>Consulting</td><td>10</td><td>80,00</td><td>800,00</td></tr>
<tr><td>Hosting</td><td>2</td><td>100</td><td></td></tr>
<tr><td>Subtotal</td><td></td><td></td><td>1.000,00</td></tr>
</table>
</body></html>`

var fakePDF = []byte("%PDF-1.4 not a real document")

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func invoiceMail() []byte {
	return crlf(`From: Billing <billing@acme.test>
To: ap@example.com
Subject: Invoice F-2026-001
Message-ID: <inv1@acme.test>
Date: Thu, 15 Jan 2026 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="MIX"

--MIX
Content-Type: multipart/alternative; boundary="ALT"

--ALT
Content-Type: text/plain; charset=utf-8

` + invoiceText + `
--ALT
Content-Type: text/html; charset=utf-8

` + invoiceHTML + `
--ALT--
--MIX
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

` + base64.StdEncoding.EncodeToString(fakePDF) + `
--MIX--
`)
}

func partialMail() []byte {
	return crlf(`From: billing@initech.test
To: ap@example.com
Subject: Factura pendiente
Message-ID: <inv2@initech.test>
Date: Fri, 16 Jan 2026 10:00:00 +0000
MIME-Version: 1.0
Content-Type: text/plain; charset=utf-8

Hola, adjuntamos los datos.
Factura: F-9
Facturado a: Globex Corp
`)
}

func chatterMail() []byte {
	return crlf(`From: friend@example.com
To: ap@example.com
Subject: Lunch?
Message-ID: <lunch@example.com>
Date: Sat, 17 Jan 2026 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

Lunch on Friday?
`)
}

func sheetBytes(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

var invoiceSheet = [][]any{
	{"Invoice number", "F-3"},
	{"Company", "Initech"},
	{"Date of issue", "2026-02-01"},
	{},
	{"Total", 500},
}

func wrapBase64(content []byte) string {
	enc := base64.StdEncoding.EncodeToString(content)
	var b strings.Builder
	for len(enc) > 76 {
		b.WriteString(enc[:76] + "\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	return b.String()
}

func sheetMail() []byte {
	return crlf(`From: billing@initech.test
To: ap@example.com
Subject: Monthly invoice
Message-ID: <inv3@initech.test>
Date: Sun, 01 Feb 2026 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="MIX"

--MIX
Content-Type: text/plain; charset=utf-8

See attached.
--MIX
Content-Type: application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
Content-Disposition: attachment; filename="february.xlsx"
Content-Transfer-Encoding: base64

` + wrapBase64(sheetBytes(invoiceSheet)) + `
--MIX--
`)
}
