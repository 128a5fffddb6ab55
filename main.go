package main

import (
	"fmt"
	"os"
	"strings"

	"orderboard/cmd/board"
	"orderboard/cmd/notificationsubscriber"
	"orderboard/cmd/orderstore"
)

func main() {
	mode, args := splitMode(os.Args[1:])

	switch mode {
	case "order-store":
		orderstore.Main(args)
	case "board":
		board.Main(args)
	case "notification-subscriber":
		notificationsubscriber.Main(args)
	case "":
		printUsage()
		os.Exit(1)
	default:
		fmt.Printf("Invalid mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}
}

// splitMode pulls --mode out of args and returns the rest for the service.
func splitMode(args []string) (string, []string) {
	var (
		mode string
		rest []string
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--mode="):
			mode = strings.TrimPrefix(arg, "--mode=")
		case arg == "--mode" && i+1 < len(args):
			mode = args[i+1]
			i++
		default:
			rest = append(rest, arg)
		}
	}
	return mode, rest
}

func printUsage() {
	fmt.Println("Usage: orderboard --mode=<mode> [mode-specific flags]")
	fmt.Println("Available modes:")
	fmt.Println("  order-store --port=3000 --backend=postgres|memory --migrate=true")
	fmt.Println("  board --view=kitchen|server|admin|customer|cancelled --token=<jwt> --store-url=http://localhost:3000")
	fmt.Println("  notification-subscriber --queue=order_status_notifications --prefetch=10")
	fmt.Println("Every mode accepts --config-path and --help.")
}
