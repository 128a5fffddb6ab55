package notificationsubscriber

import (
	"context"
	"errors"
	"fmt"
	"os"

	"orderboard/internal/notsub"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
)

// Main runs the notification-subscriber with args and exits with its status.
func Main(args []string) {
	mylog, err := logger.New("notification-subscriber", os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync(mylog)

	if err := notsub.Execute(context.Background(), mylog, args); err != nil && !errors.Is(err, apperr.ErrHelp) {
		logger.Sync(mylog)
		os.Exit(1)
	}
}
