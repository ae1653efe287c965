package ecommerce

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/erp/stocksync/internal/domain/integration"
)

// KeyCRM stock item fields
const (
	keyCRMFieldData     = "data"
	keyCRMFieldNextPage = "next_page_url"
	keyCRMFieldSku      = "sku"
	keyCRMFieldPrice    = "price"
	keyCRMFieldQuantity = "quantity"
	keyCRMFieldReserve  = "reserve"
	keyCRMFieldReserved = "reserved"
)

// keyCRMStockPage is one decoded page of /offers/stocks
type keyCRMStockPage struct {
	Records     []integration.StockRecord
	Skipped     int
	NextPageURL string
}

// parseKeyCRMStockPage decodes a page body. Items without sku or quantity are
// counted in Skipped instead of failing the page.
func parseKeyCRMStockPage(body []byte) (*keyCRMStockPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, integration.ErrParse
	}

	root := gjson.ParseBytes(body)
	data := root.Get(keyCRMFieldData)
	if !data.IsArray() {
		return nil, integration.ErrSchema
	}

	page := &keyCRMStockPage{}
	data.ForEach(func(_, item gjson.Result) bool {
		record, ok := normalizeKeyCRMStockItem(item)
		if !ok {
			page.Skipped++
			return true
		}
		page.Records = append(page.Records, record)
		return true
	})

	if next := root.Get(keyCRMFieldNextPage); next.Type == gjson.String {
		page.NextPageURL = strings.TrimSpace(next.Str)
	}
	return page, nil
}

// normalizeKeyCRMStockItem converts one raw item. A JSON null counts as absent.
// Counts given as fractional numbers or numeric strings are truncated; counts
// that are not numeric at all reject the item.
func normalizeKeyCRMStockItem(item gjson.Result) (integration.StockRecord, bool) {
	if !item.IsObject() {
		return integration.StockRecord{}, false
	}

	sku, ok := parseKeyCRMSku(item.Get(keyCRMFieldSku))
	if !ok {
		return integration.StockRecord{}, false
	}
	quantity, ok := parseKeyCRMCount(item.Get(keyCRMFieldQuantity))
	if !ok {
		return integration.StockRecord{}, false
	}

	record := integration.StockRecord{
		SKU:      sku,
		Price:    parseKeyCRMPrice(item.Get(keyCRMFieldPrice)),
		Quantity: quantity,
	}
	if !record.IsValid() {
		return integration.StockRecord{}, false
	}

	reserve := item.Get(keyCRMFieldReserve)
	if !isPresent(reserve) {
		reserve = item.Get(keyCRMFieldReserved)
	}
	if isPresent(reserve) {
		reserved, ok := parseKeyCRMCount(reserve)
		if !ok {
			return integration.StockRecord{}, false
		}
		record.Reserved = reserved
	}

	return record, true
}

func isPresent(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

// parseKeyCRMSku accepts string and numeric SKUs only.
func parseKeyCRMSku(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str), true
	case gjson.Number:
		return r.Raw, true
	default:
		return "", false
	}
}

var maxKeyCRMCount = decimal.NewFromInt(math.MaxInt64)

// parseKeyCRMCount truncates toward zero, clamps negatives to zero and
// saturates at MaxInt64.
func parseKeyCRMCount(r gjson.Result) (int64, bool) {
	d, ok := parseKeyCRMDecimal(r)
	if !ok {
		return 0, false
	}
	d = d.Truncate(0)
	switch {
	case d.IsNegative():
		return 0, true
	case d.GreaterThan(maxKeyCRMCount):
		return math.MaxInt64, true
	default:
		return d.IntPart(), true
	}
}

// parseKeyCRMPrice accepts numbers and numeric strings; anything else is no price.
func parseKeyCRMPrice(r gjson.Result) decimal.NullDecimal {
	d, ok := parseKeyCRMDecimal(r)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func parseKeyCRMDecimal(r gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch r.Type {
	case gjson.Number:
		raw = r.Raw
	case gjson.String:
		raw = strings.TrimSpace(r.Str)
	default:
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
