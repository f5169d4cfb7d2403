package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/shopspring/decimal"
)

// Session metadata keys. The webhook recovers the whole order from these.
const (
	MetaOrderID           = "orderId"
	MetaCustomerName      = "customerName"
	MetaCustomerPhone     = "customerPhone"
	MetaOrderType         = "orderType"
	MetaFulfillmentDetail = "fulfillmentDetail"
	MetaNotes             = "notes"
	MetaItems             = "itemsProjection"
	MetaTotal             = "total"
)

const (
	maxItemsProjection = 500
	maxName            = 100
	maxPhone           = 20
	maxDetail          = 200
	maxNotes           = 200
)

type itemProjection struct {
	Name     string     `json:"name"`
	Price    jsonNumber `json:"price"`
	Quantity int64      `json:"quantity"`
}

// jsonNumber encodes a decimal as a bare JSON number. Decoding accepts
// numbers and quoted strings.
type jsonNumber struct{ decimal.Decimal }

func (n jsonNumber) MarshalJSON() ([]byte, error) { return []byte(n.String()), nil }

// EncodeMetadata serialises the order snapshot carried by the payment session.
func EncodeMetadata(o *domain.Order) (map[string]string, error) {
	proj := make([]itemProjection, 0, len(o.Items))
	for _, it := range o.Items {
		proj = append(proj, itemProjection{Name: it.Name, Price: jsonNumber{it.UnitPrice}, Quantity: it.Quantity})
	}
	items, err := json.Marshal(proj)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	if len(items) > maxItemsProjection {
		return nil, ErrCartTooLarge
	}

	return map[string]string{
		MetaOrderID:           o.ID,
		MetaCustomerName:      truncate(o.Customer.Name, maxName),
		MetaCustomerPhone:     truncate(o.Customer.Phone, maxPhone),
		MetaOrderType:         string(o.Type),
		MetaFulfillmentDetail: truncate(o.FulfillmentDetail, maxDetail),
		MetaNotes:             truncate(o.Notes, maxNotes),
		MetaItems:             string(items),
		MetaTotal:             o.Total.StringFixed(2),
	}, nil
}

// OrderContext is the order as reconstructed from session metadata.
type OrderContext struct {
	OrderID           string
	CustomerName      string
	CustomerPhone     string
	Type              domain.OrderType
	FulfillmentDetail string
	Notes             string
	Items             []domain.LineItem
	Total             decimal.Decimal
	HasTotal          bool
}

var (
	errMissingOrderID = errors.New("metadata: orderId missing")
	errBadItems       = errors.New("metadata: itemsProjection undecodable")
	errBadTotal       = errors.New("metadata: total undecodable")
	errBadOrderType   = errors.New("metadata: orderType unknown")
)

// DecodeMetadata never fails as a whole: a damaged field is left zero and
// reported, the rest is still returned.
func DecodeMetadata(md map[string]string) (OrderContext, []error) {
	var (
		oc   OrderContext
		errs []error
	)
	oc.OrderID = strings.TrimSpace(md[MetaOrderID])
	if oc.OrderID == "" {
		errs = append(errs, errMissingOrderID)
	}
	oc.CustomerName = md[MetaCustomerName]
	oc.CustomerPhone = md[MetaCustomerPhone]
	oc.FulfillmentDetail = md[MetaFulfillmentDetail]
	oc.Notes = md[MetaNotes]

	if raw := md[MetaOrderType]; raw != "" {
		t, err := domain.ParseOrderType(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %q", errBadOrderType, raw))
		}
		oc.Type = t
	}

	if raw := md[MetaItems]; raw != "" {
		var proj []itemProjection
		if err := json.Unmarshal([]byte(raw), &proj); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", errBadItems, err))
		} else {
			oc.Items = make([]domain.LineItem, 0, len(proj))
			for _, p := range proj {
				oc.Items = append(oc.Items, domain.LineItem{Name: p.Name, UnitPrice: p.Price.Decimal, Quantity: p.Quantity})
			}
		}
	}

	if raw := md[MetaTotal]; raw != "" {
		t, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", errBadTotal, err))
		} else {
			oc.Total, oc.HasTotal = t, true
		}
	}
	return oc, errs
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
