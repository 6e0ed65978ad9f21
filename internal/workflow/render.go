package workflow

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/byggpilot/byggpilot/internal/store"
)

var sekPrinter = message.NewPrinter(language.Swedish)

// FormatSEK renders an öre amount the way a Swedish invoice shows it,
// with a decimal comma.
func FormatSEK(amountOre int64) string {
	return sekPrinter.Sprintf("%.2f kr", float64(amountOre)/100)
}

// FormatSEKTotal renders a total line with the ISO currency code spelled
// out, as required on formal invoice documents.
func FormatSEKTotal(amountOre int64) string {
	return fmt.Sprintf("%s (%v)", FormatSEK(amountOre), currency.SEK)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

type invoiceDraftData struct {
	Company      store.Company
	Project      store.Project
	Customer     store.Customer
	Offer        *store.Offer
	ChangeOrders []store.ChangeOrder
	Expenses     []store.Expense
}

func (d invoiceDraftData) billableChangeOrders() []store.ChangeOrder {
	ret := make([]store.ChangeOrder, 0, len(d.ChangeOrders))
	for _, order := range d.ChangeOrders {
		if order.Status == store.ChangeOrderApproved {
			ret = append(ret, order)
		}
	}
	return ret
}

func (d invoiceDraftData) unapprovedChangeOrders() []store.ChangeOrder {
	ret := make([]store.ChangeOrder, 0, len(d.ChangeOrders))
	for _, order := range d.ChangeOrders {
		if order.Status == store.ChangeOrderDraft || order.Status == store.ChangeOrderSent {
			ret = append(ret, order)
		}
	}
	return ret
}

// total sums the accepted offer, approved change orders and logged expenses.
// Already-billed change orders (approved_by_invoicing) are excluded.
func (d invoiceDraftData) total() int64 {
	var total int64
	if d.Offer != nil {
		total += d.Offer.AmountOre
	}
	for _, order := range d.billableChangeOrders() {
		total += order.AmountOre
	}
	for _, expense := range d.Expenses {
		total += expense.AmountOre
	}
	return total
}

func renderInvoiceDraft(d invoiceDraftData, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FAKTURAUNDERLAG – %s\n", d.Project.Name)
	fmt.Fprintf(&b, "Datum: %s\n\n", formatDate(now))
	fmt.Fprintf(&b, "Leverantör: %s (org.nr %s)\n", d.Company.Name, d.Company.OrgNumber)
	fmt.Fprintf(&b, "Kund: %s\n", d.Customer.Name)
	if d.Customer.Address != "" {
		fmt.Fprintf(&b, "Adress: %s\n", d.Customer.Address)
	}
	b.WriteString("\n")

	if d.Offer != nil {
		fmt.Fprintf(&b, "Offert (accepterad): %s  %s\n", d.Offer.Title, FormatSEK(d.Offer.AmountOre))
	} else {
		b.WriteString("Offert: saknas – fakturan baseras på löpande räkning\n")
	}

	billable := d.billableChangeOrders()
	if len(billable) > 0 {
		b.WriteString("\nGodkända ÄTA-arbeten:\n")
		for _, order := range billable {
			fmt.Fprintf(&b, "  - %s  %s\n", order.Title, FormatSEK(order.AmountOre))
		}
	}

	if len(d.Expenses) > 0 {
		b.WriteString("\nUtlägg:\n")
		for _, expense := range d.Expenses {
			fmt.Fprintf(&b, "  - %s (%s)  %s\n", expense.Description, expense.Category, FormatSEK(expense.AmountOre))
		}
	}

	fmt.Fprintf(&b, "\nTotalt exkl. moms: %s\n", FormatSEKTotal(d.total()))
	b.WriteString("Moms tillkommer enligt gällande regler.\n")
	return b.String()
}

func renderChangeOrderDraft(company store.Company, project store.Project, customer store.Customer, order store.ChangeOrder, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ÄTA-UNDERLAG – %s\n", order.Title)
	fmt.Fprintf(&b, "Datum: %s\n\n", formatDate(now))
	fmt.Fprintf(&b, "Projekt: %s, %s\n", project.Name, project.Address)
	fmt.Fprintf(&b, "Entreprenör: %s (org.nr %s)\n", company.Name, company.OrgNumber)
	fmt.Fprintf(&b, "Beställare: %s\n\n", customer.Name)
	fmt.Fprintf(&b, "Beskrivning av ändrings-/tilläggsarbete:\n%s\n\n", order.Description)
	fmt.Fprintf(&b, "Pris: %s\n\n", FormatSEKTotal(order.AmountOre))
	b.WriteString("Arbetet påbörjas efter skriftligt godkännande av beställaren.\n")
	return b.String()
}
