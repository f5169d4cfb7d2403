package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// Composer renders the customer confirmation and the merchant notice.
type Composer struct {
	tmpl *template.Template
	now  func() time.Time
}

func NewComposer() (*Composer, error) {
	t, err := template.New("email").Funcs(template.FuncMap{
		"money":     money,
		"lineTotal": func(it domain.LineItem) string { return money(it.LineTotal()) },
		"typeLabel": typeLabel,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Composer{tmpl: t, now: time.Now}, nil
}

type view struct {
	usecase.Confirmation
	Year int
}

func (c *Composer) render(name string, conf usecase.Confirmation) (string, error) {
	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, name, view{Confirmation: conf, Year: c.now().Year()}); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (c *Composer) CustomerConfirmation(conf usecase.Confirmation) (string, string, error) {
	html, err := c.render("customer.html", conf)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Your Root + Fuel order is confirmed! (%s)", conf.OrderID), html, nil
}

func (c *Composer) MerchantNotice(conf usecase.Confirmation) (string, string, error) {
	html, err := c.render("merchant.html", conf)
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("New order %s - %s (%s)", conf.OrderID, money(conf.Total), typeLabel(conf.Type))
	return subject, html, nil
}

func money(d decimal.Decimal) string { return "£" + d.StringFixed(2) }

func typeLabel(t domain.OrderType) string {
	switch t {
	case domain.OrderTypeDelivery:
		return "Delivery"
	case domain.OrderTypePickup:
		return "Collection"
	case domain.OrderTypeDineIn:
		return "Dine in"
	}
	return "Unknown"
}

var _ usecase.Composer = (*Composer)(nil)
