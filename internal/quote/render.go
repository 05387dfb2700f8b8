package quote

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
)

// LineText renders one line the way the shop quotes it in chat.
func LineText(l Line, currency string, includeVAT bool) string {
	if !l.Result.Valid() {
		return fmt.Sprintf("Sticker %d (%sx%smm): %s", l.Index, l.Width, l.Height, l.Result.Price())
	}
	spr, _ := l.Result.StickersPerRow()
	var b strings.Builder
	fmt.Fprintf(&b, "%sx%smm - %s%s excl VAT per sticker (%d stickers per row)\n",
		l.Width, l.Height, currency, l.Result.Price(), spr)
	fmt.Fprintf(&b, "%d rows - %d stickers\n", l.Rows, l.TotalStickers)
	fmt.Fprintf(&b, "%s%s Excl VAT", currency, money(l.TotalExclVAT))
	if includeVAT {
		fmt.Fprintf(&b, "\nIncl VAT: %s%s", currency, money(l.TotalInclVAT))
	}
	return b.String()
}

// Text renders the whole quote as shareable plain text.
func Text(q Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sticker King Quote\nMaterial: %s\n", q.Material)
	if q.RoundedCorners {
		b.WriteString("Rounded corners: yes\n")
	}
	for _, l := range q.Lines {
		b.WriteString("\n")
		b.WriteString(LineText(l, q.Currency, q.IncludeVAT))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nTotal: %s%s Excl VAT", q.Currency, money(q.TotalExclVAT))
	if q.IncludeVAT {
		fmt.Fprintf(&b, "\nTotal: %s%s Incl VAT (%s%% VAT)", q.Currency, money(q.TotalInclVAT), q.VATRate.String())
	}
	if q.BelowMinOrder {
		fmt.Fprintf(&b, "\nMinimum order amount is %s%s Excl VAT", q.Currency, money(q.MinOrderAmount))
	}
	return b.String()
}

//go:embed quote.html.tmpl
var quoteHTML string

var htmlTmpl = template.Must(template.New("quote").Funcs(template.FuncMap{
	"money": money,
	"lines": func(s string) []string { return strings.Split(s, "\n") },
	"text":  LineText,
}).Parse(quoteHTML))

// HTML renders the printable page that is fed to Chrome for PDF export.
func HTML(q Quote) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, q); err != nil {
		return "", fmt.Errorf("render quote html: %w", err)
	}
	return buf.String(), nil
}
