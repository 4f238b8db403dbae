package notionsync

import (
	"math/big"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the ledger database.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropStatementID   = "Statement ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropBalance       = "Balance"
	PropMerchant      = "Merchant"
	PropCategory      = "Category"
	PropMethod        = "Method"
	PropConfidence    = "Confidence"
	PropRepaired      = "Repaired"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

func ratFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

// TransactionToNotionProperties converts a categorized transaction to the
// ledger database's properties. Amount is signed: credits positive, debits
// negative.
func TransactionToNotionProperties(tx *domain.CategorizedTransaction) notionapi.Properties {
	date := notionapi.Date(time.Date(tx.Date.Year, tx.Date.Month, tx.Date.Day, 0, 0, 0, 0, time.UTC))

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.TransactionID),
		},
		PropStatementID: notionapi.RichTextProperty{
			RichText: richText(tx.StatementID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropAmount: notionapi.NumberProperty{
			Number: ratFloat(domain.Net(tx.Debit, tx.Credit)),
		},
		PropRepaired: notionapi.CheckboxProperty{
			Checkbox: tx.IsRepaired,
		},
	}

	if tx.Balance != nil {
		props[PropBalance] = notionapi.NumberProperty{Number: ratFloat(tx.Balance)}
	}
	if tx.Merchant != "" {
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(tx.Merchant)}
	}
	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: string(tx.Category)}}
		props[PropConfidence] = notionapi.NumberProperty{Number: tx.Confidence}
	}
	if tx.Method != "" {
		props[PropMethod] = notionapi.SelectProperty{Select: notionapi.Option{Name: string(tx.Method)}}
	}
	return props
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	switch prop := page.Properties[PropTransactionID].(type) {
	case *notionapi.RichTextProperty:
		if len(prop.RichText) > 0 {
			return plain(prop.RichText[0])
		}
	case notionapi.RichTextProperty:
		if len(prop.RichText) > 0 {
			return plain(prop.RichText[0])
		}
	}
	return ""
}

func plain(rt notionapi.RichText) string {
	if rt.PlainText != "" {
		return rt.PlainText
	}
	if rt.Text != nil {
		return rt.Text.Content
	}
	return ""
}
