package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderboard/pkg/models"
)

// Field aliases accepted from the store. The first match wins.
var (
	idKeys        = []string{"id", "order_id", "orderId"}
	numberKeys    = []string{"order_number", "orderNumber", "number"}
	tenantKeys    = []string{"tenant_id", "tenantId", "outlet_id", "outletId"}
	tableKeys     = []string{"table_number", "tableNumber", "table"}
	customerKeys  = []string{"customer_id", "customerId"}
	statusKeys    = []string{"status", "order_status", "orderStatus"}
	itemsKeys     = []string{"items", "order_items", "orderItems", "lines"}
	subtotalKeys  = []string{"subtotal", "sub_total", "subTotal"}
	discountKeys  = []string{"discount_amount", "discountAmount", "discount"}
	reasonKeys    = []string{"discount_reason", "discountReason"}
	taxKeys       = []string{"tax_amount", "taxAmount", "tax"}
	totalKeys     = []string{"total", "total_amount", "totalAmount"}
	createdKeys   = []string{"created_at", "createdAt"}
	updatedKeys   = []string{"updated_at", "updatedAt"}
	menuItemKeys  = []string{"menu_item_id", "menuItemId", "product_id", "productId"}
	nameKeys      = []string{"name", "item_name", "itemName"}
	quantityKeys  = []string{"quantity", "qty"}
	unitPriceKeys = []string{"unit_price", "unitPrice", "price"}
	noteKeys      = []string{"instructions", "notes", "note"}
	currentKeys   = []string{"current_status", "currentStatus", "status"}

	listKeys = []string{"data", "orders", "items", "results"}
)

type object map[string]json.RawMessage

// decodeOrders accepts a bare array, {data|orders|items|results: [...]},
// {data: {orders: [...]}} and a single order object, bare or under data.
// Orders carrying a status outside the lifecycle are skipped and counted.
func decodeOrders(body []byte) ([]models.Order, int, error) {
	raws, err := orderList(bytes.TrimSpace(body), 0)
	if err != nil {
		return nil, 0, err
	}

	orders := make([]models.Order, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		o, err := decodeOrder(raw)
		if err != nil {
			skipped++
			continue
		}
		orders = append(orders, o)
	}
	return orders, skipped, nil
}

func decodeSingle(body []byte) (models.Order, error) {
	raws, err := orderList(bytes.TrimSpace(body), 0)
	if err != nil {
		return models.Order{}, err
	}
	if len(raws) != 1 {
		return models.Order{}, fmt.Errorf("expected one order, got %d", len(raws))
	}
	return decodeOrder(raws[0])
}

func orderList(body []byte, depth int) ([]object, error) {
	if depth > 2 {
		return nil, fmt.Errorf("order envelope nested too deep")
	}
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	switch body[0] {
	case '[':
		var list []object
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode order list: %w", err)
		}
		return list, nil

	case '{':
		var obj object
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if _, ok := pick(obj, idKeys...); ok {
			if _, isOrder := pick(obj, statusKeys...); isOrder {
				return []object{obj}, nil
			}
		}
		if inner, ok := pick(obj, listKeys...); ok {
			return orderList(bytes.TrimSpace(inner), depth+1)
		}
		return nil, fmt.Errorf("unrecognized order envelope")
	}
	return nil, fmt.Errorf("unexpected response body")
}

func decodeOrder(obj object) (models.Order, error) {
	var o models.Order

	o.ID = str(obj, idKeys...)
	if o.ID == "" {
		return o, fmt.Errorf("order without id")
	}
	st, err := models.ParseStatus(str(obj, statusKeys...))
	if err != nil {
		return o, err
	}
	o.Status = st

	o.Number = integer(obj, numberKeys...)
	o.TenantID = str(obj, tenantKeys...)
	o.TableNumber = int(integer(obj, tableKeys...))
	o.CustomerID = str(obj, customerKeys...)

	o.Subtotal = money(obj, subtotalKeys...)
	o.DiscountAmount = money(obj, discountKeys...)
	o.DiscountReason = str(obj, reasonKeys...)
	o.TaxAmount = money(obj, taxKeys...)
	o.Total = money(obj, totalKeys...)

	o.CreatedAt = timestamp(obj, createdKeys...)
	o.UpdatedAt = timestamp(obj, updatedKeys...)
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}

	if raw, ok := pick(obj, itemsKeys...); ok {
		var items []object
		if err := json.Unmarshal(raw, &items); err != nil {
			return o, fmt.Errorf("order %s items: %w", o.ID, err)
		}
		for _, it := range items {
			item := models.OrderItem{
				MenuItemID:   str(it, menuItemKeys...),
				Name:         str(it, nameKeys...),
				Quantity:     int(integer(it, quantityKeys...)),
				UnitPrice:    money(it, unitPriceKeys...),
				Subtotal:     money(it, subtotalKeys...),
				Instructions: str(it, noteKeys...),
			}
			o.Items = append(o.Items, item)
		}
	}
	return o, nil
}

func pick(obj object, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

func str(obj object, keys ...string) string {
	raw, ok := pick(obj, keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// numeric ids
	return strings.Trim(string(raw), `" `)
}

func integer(obj object, keys ...string) int64 {
	raw, ok := pick(obj, keys...)
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return v
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

func money(obj object, keys ...string) decimal.Decimal {
	raw, ok := pick(obj, keys...)
	if !ok {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero
	}
	return d
}

func timestamp(obj object, keys ...string) time.Time {
	raw, ok := pick(obj, keys...)
	if !ok {
		return time.Time{}
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err == nil {
		return t
	}
	// unix seconds
	if n := integer(object{"v": raw}, "v"); n > 0 {
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}

// currentStatus reads the status a 409/422 body reports, if any.
func currentStatus(body []byte) models.Status {
	var obj object
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	candidates := []object{obj}
	for _, k := range []string{"error", "details", "data"} {
		var nested object
		if raw, ok := obj[k]; ok && json.Unmarshal(raw, &nested) == nil {
			candidates = append(candidates, nested)
		}
	}
	for _, c := range candidates {
		if st, err := models.ParseStatus(str(c, currentKeys...)); err == nil {
			return st
		}
	}
	return ""
}

// Error codes the store puts in error bodies.
const (
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeStatusConflict    = "status_conflict"
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "internal"
)

func errorCode(body []byte) string {
	var obj object
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	return str(obj, "code", "error_code", "errorCode")
}
