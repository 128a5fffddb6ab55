package core

import "github.com/shopspring/decimal"

type StoreParams struct {
	Port    int
	Backend string
	Migrate bool
}

type ServiceParams struct {
	DefaultLimit      int
	MaxLimit          int
	TransitionRetries int
}

const (
	WaitTime = 10

	DefaultChangedBy = "order-store"

	MinItems = 1
	MaxItems = 50

	MinItemNameLen = 1
	MaxItemNameLen = 100

	MinItemQuantity = 1
	MaxItemQuantity = 100

	MinTableNumber = 1
	MaxTableNumber = 500

	MaxInstructionsLen = 500
)

var (
	MinItemPrice = decimal.NewFromFloat(0.01)
	MaxItemPrice = decimal.NewFromInt(100_000)
)
