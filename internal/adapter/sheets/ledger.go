// Package sheets keeps the order ledger in a Google Sheet, one row per order.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/usecase"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Column layout of the Orders tab, A through L.
const (
	colCreatedAt = iota
	colOrderID
	colStatus
	colType
	colName
	colEmail
	colPhone
	colDetail
	colItems
	colTotal
	colNotes
	colDiscount
	numCols
)

// RAW keeps phone numbers and ids exactly as written.
const valueInput = "RAW"

type Ledger struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
}

// New connects to the spreadsheet. Credentials and endpoint come in through opts.
func New(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*Ledger, error) {
	if sheet == "" {
		sheet = "Orders"
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &Ledger{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func (l *Ledger) rng(a1 string) string { return l.sheet + "!" + a1 }

func (l *Ledger) Append(ctx context.Context, o *domain.Order) error {
	row := make([]any, numCols)
	row[colCreatedAt] = o.CreatedAt.UTC().Format(time.RFC3339)
	row[colOrderID] = o.ID
	row[colStatus] = string(o.Status)
	row[colType] = string(o.Type)
	row[colName] = o.Customer.Name
	row[colEmail] = o.Customer.Email
	row[colPhone] = o.Customer.Phone
	row[colDetail] = detailCell(o)
	row[colItems] = itemsCell(o.Items)
	row[colTotal] = "£" + o.Total.StringFixed(2)
	row[colNotes] = orDash(o.Notes)
	row[colDiscount] = discountCell(o.Discount)

	_, err := l.svc.Spreadsheets.Values.
		Append(l.spreadsheetID, l.rng("A:L"), &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, orderID string) (*usecase.OrderRecord, error) {
	vr, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, l.rng("A:L")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	for _, r := range vr.Values {
		if cell(r, colOrderID) != orderID {
			continue
		}
		return &usecase.OrderRecord{
			CreatedAt:         cell(r, colCreatedAt),
			ID:                cell(r, colOrderID),
			Status:            cell(r, colStatus),
			Type:              cell(r, colType),
			CustomerName:      cell(r, colName),
			CustomerEmail:     cell(r, colEmail),
			CustomerPhone:     cell(r, colPhone),
			FulfillmentDetail: cell(r, colDetail),
			Items:             cell(r, colItems),
			Total:             strings.TrimPrefix(cell(r, colTotal), "£"),
			Notes:             cell(r, colNotes),
			Discount:          cell(r, colDiscount),
		}, nil
	}
	return nil, usecase.ErrNotFound
}

// TransitionStatus finds the first row for orderID and rewrites its status
// cell. Find and update are separate calls; a concurrent writer can interleave.
func (l *Ledger) TransitionStatus(ctx context.Context, orderID string, to domain.Status) (domain.Status, bool, error) {
	vr, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, l.rng("B:C")).Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("read ids: %w", err)
	}

	for i, r := range vr.Values {
		if cell(r, 0) != orderID {
			continue
		}
		prev := domain.ParseStatus(cell(r, 1))
		if !prev.CanTransitionTo(to) {
			return prev, false, nil
		}
		target := l.rng(fmt.Sprintf("C%d", i+1))
		_, err := l.svc.Spreadsheets.Values.
			Update(l.spreadsheetID, target, &sheets.ValueRange{Values: [][]any{{string(to)}}}).
			ValueInputOption(valueInput).
			Context(ctx).
			Do()
		if err != nil {
			return prev, false, fmt.Errorf("update %s: %w", target, err)
		}
		return prev, true, nil
	}
	return "", false, usecase.ErrNotFound
}

func cell(r []any, i int) string {
	if i >= len(r) || r[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(r[i]))
}

func detailCell(o *domain.Order) string {
	switch o.Type {
	case domain.OrderTypePickup:
		return "Pickup"
	case domain.OrderTypeDineIn:
		return "Table " + o.FulfillmentDetail
	}
	return o.FulfillmentDetail
}

func itemsCell(items []domain.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, ", ")
}

func discountCell(d *domain.Discount) string {
	if d == nil {
		return ""
	}
	if d.Kind == domain.DiscountPercent {
		return d.Amount.String() + "%"
	}
	return "£" + d.Amount.StringFixed(2)
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

var _ usecase.Ledger = (*Ledger)(nil)
