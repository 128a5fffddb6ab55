package orderstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"orderboard/internal/orderstore"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
)

// Main runs the order-store with args and exits with its status.
func Main(args []string) {
	mylog, err := logger.New("order-store", os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync(mylog)

	if err := orderstore.Execute(context.Background(), mylog, args); err != nil && !errors.Is(err, apperr.ErrHelp) {
		logger.Sync(mylog)
		os.Exit(1)
	}
}
