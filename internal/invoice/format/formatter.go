package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// DefaultInvoiceNumberTemplate renders numbers like INV-2024-0007.
const DefaultInvoiceNumberTemplate = "{PREFIX}-{YYYY}-{SEQ4}"

// FormatInvoiceNumber renders an invoice number from a template, a prefix,
// the issue date and the yearly sequence value. It has no side effects.
func FormatInvoiceNumber(template, prefix string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	issuedAt = issuedAt.UTC()
	out := strings.ReplaceAll(template, "{PREFIX}", strings.TrimSpace(prefix))
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// PDFFileName is the attachment name used for an invoice document.
func PDFFileName(invoiceNumber string) string {
	return fmt.Sprintf("Invoice_%s.pdf", invoiceNumber)
}
