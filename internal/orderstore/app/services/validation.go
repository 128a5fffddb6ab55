package services

import (
	"fmt"

	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

// ValidateOrder validates a create request against the ordering rules.
func ValidateOrder(req models.CreateOrderRequest) error {
	if err := validateOwner(req); err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}
	if err := validateOrderItems(req.Items); err != nil {
		return fmt.Errorf("invalid order items: %w", err)
	}
	if req.DiscountAmount.IsNegative() || req.TaxAmount.IsNegative() {
		return fmt.Errorf("discount and tax cannot be negative")
	}
	if req.DiscountAmount.IsPositive() && req.DiscountReason == "" {
		return fmt.Errorf("discount reason: %w", apperr.ErrFieldIsEmpty)
	}
	return nil
}

// validateOwner requires exactly one of table and customer.
func validateOwner(req models.CreateOrderRequest) error {
	hasTable := req.TableNumber != 0
	hasCustomer := req.CustomerID != ""

	switch {
	case hasTable && hasCustomer:
		return fmt.Errorf("order belongs to a table or a customer, not both")
	case !hasTable && !hasCustomer:
		return fmt.Errorf("table number or customer id: %w", apperr.ErrFieldIsEmpty)
	case hasTable && (req.TableNumber < core.MinTableNumber || req.TableNumber > core.MaxTableNumber):
		return fmt.Errorf("table number: %d, must be in range [%d, %d]", req.TableNumber, core.MinTableNumber, core.MaxTableNumber)
	}
	return nil
}

func validateOrderItems(items []models.OrderItemRequest) error {
	itemsLen := len(items)
	if itemsLen == 0 {
		return apperr.ErrFieldIsEmpty
	}
	if itemsLen < core.MinItems || itemsLen > core.MaxItems {
		return fmt.Errorf("amount of items: %d, must be in range [%d, %d]", itemsLen, core.MinItems, core.MaxItems)
	}

	for i, item := range items {
		nameLen := len(item.Name)
		if nameLen < core.MinItemNameLen || nameLen > core.MaxItemNameLen {
			return fmt.Errorf("item %d: name len: %d, must be in range [%d, %d]", i+1, nameLen, core.MinItemNameLen, core.MaxItemNameLen)
		}
		if item.Quantity < core.MinItemQuantity || item.Quantity > core.MaxItemQuantity {
			return fmt.Errorf("item %d: quantity: %d, must be in range [%d, %d]", i+1, item.Quantity, core.MinItemQuantity, core.MaxItemQuantity)
		}
		if item.UnitPrice.LessThan(core.MinItemPrice) || item.UnitPrice.GreaterThan(core.MaxItemPrice) {
			return fmt.Errorf("item %d: unit price: %s, must be in range [%s, %s]", i+1, item.UnitPrice, core.MinItemPrice, core.MaxItemPrice)
		}
		if len(item.Instructions) > core.MaxInstructionsLen {
			return fmt.Errorf("item %d: instructions longer than %d", i+1, core.MaxInstructionsLen)
		}
	}
	return nil
}
