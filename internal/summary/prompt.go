package summary

import (
	"fmt"
	"strings"

	"invoicedash/internal"
	"invoicedash/internal/util"
)

const systemPrompt = `You are a financial assistant for an accounts team.
Summarize the invoice you are given in 3 to 5 short sentences of plain prose.
Mention who billed whom, the issue and due dates, the total with tax, and what the main line items were.
Point out anything unusual: missing due date, zero totals, totals that do not add up, or placeholder values such as "N/A".
Do not invent facts that are not in the invoice.`

func buildPrompt(inv internal.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice number: %s\n", inv.InvoiceNumber)
	fmt.Fprintf(&b, "Issued by: %s (%s)\n", inv.CompanyName, inv.CompanyAddress)
	fmt.Fprintf(&b, "Billed to: %s, attention %s\n", inv.BilledTo, inv.RecipientName)
	fmt.Fprintf(&b, "Date of issue: %s\n", inv.DateOfIssue)
	if inv.DueDate != nil {
		fmt.Fprintf(&b, "Due date: %s\n", *inv.DueDate)
	} else {
		b.WriteString("Due date: not stated\n")
	}
	fmt.Fprintf(&b, "Subtotal: %.2f\n", inv.Subtotal)
	fmt.Fprintf(&b, "Discount: %.2f\n", inv.Discount)
	fmt.Fprintf(&b, "Tax: %.2f (%.2f%%)\n", inv.Tax, inv.TaxRate)
	fmt.Fprintf(&b, "Total: %.2f\n", inv.Total)
	fmt.Fprintf(&b, "Allocation: staffing %.1f%%, project %.1f%%, software %.1f%%\n",
		inv.StaffingPercentage, inv.ProjectPercentage, inv.SoftwarePercentage)

	if len(inv.Items) == 0 {
		b.WriteString("Line items: none\n")
	} else {
		b.WriteString("Line items:\n")
		for i, item := range inv.Items {
			fmt.Fprintf(&b, "%d. %s | qty %g | rate %.2f | amount %.2f\n",
				i+1, util.FirstNonEmpty(item.Description, "(no description)"), item.Quantity, item.Rate, item.Amount)
		}
	}
	return b.String()
}
