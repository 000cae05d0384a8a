package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

var documentTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": formatCents,
}).Parse(`INVOICE {{.Number}}
Issued:   {{.Issued}}
Booking:  #{{.BookingID}}{{if .ProviderReference}} (flight ref {{.ProviderReference}}){{end}}
Customer: {{.Customer}}

{{range .Lines -}}
{{printf "%-52s" .Description}} {{printf "%12s" (money .AmountCents)}}
{{end -}}
{{printf "%-52s" "TOTAL"}} {{printf "%12s" (money .TotalCents)}} {{.Currency}}
`))

type line struct {
	Description string
	AmountCents int64
}

type document struct {
	Number            string
	Issued            string
	BookingID         uint64
	ProviderReference string
	Customer          string
	Lines             []line
	TotalCents        int64
	Currency          string
}

func render(d document) (string, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatCents prints 123456 as "1234.56".
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// newNumber returns INV-<yyyymmdd>-<first 8 hex of a random uuid>.
func newNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}
