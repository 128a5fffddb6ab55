package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"orderboard/internal/notsub/app/core"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

var errMalformed = errors.New("malformed status update")

type Notification struct {
	mb     core.IBroker
	params core.SubscriberParams
	out    io.Writer
	mylog  logger.Logger
	ctx    context.Context

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewNotification prints one line per status change to out.
func NewNotification(ctx context.Context, mb core.IBroker, params core.SubscriberParams, out io.Writer, mylog logger.Logger) *Notification {
	return &Notification{
		ctx:    ctx,
		mb:     mb,
		params: params,
		out:    out,
		mylog:  mylog,
	}
}

// Run consumes until ctx ends or the delivery channel closes.
func (n *Notification) Run() error {
	deliveries, err := n.mb.Consume(n.params.Queue, n.params.Prefetch)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", n.params.Queue, err)
	}
	n.mylog.Action("consumer_started").Info("Waiting for status updates", "queue", n.params.Queue)

	n.work(deliveries)
	return nil
}

func (n *Notification) Stop(context.Context) error {
	n.mylog.Action("graceful_shutdown_started").Info("Shutting down")

	n.wg.Wait()

	if err := n.mb.Close(); err != nil {
		n.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
		return fmt.Errorf("mb close: %w", err)
	}
	n.mylog.Action("graceful_shutdown_completed").Info("Successfully shut down")
	return nil
}

func (n *Notification) work(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-n.ctx.Done():
			n.mylog.Action("work_shutdown").Info("Stopping message consumption due to context cancel")
			return

		case msg, ok := <-deliveries:
			if !ok {
				n.mylog.Action("work_shutdown").Warn("Delivery channel closed")
				return
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.handle(msg)
			}()
		}
	}
}

func (n *Notification) handle(msg amqp.Delivery) {
	if err := n.processMsg(msg); err != nil {
		// Redelivering a message that cannot be decoded would loop forever.
		requeue := !errors.Is(err, errMalformed)
		n.mylog.Action("process_failed").Error("Failed to process status update", err, "requeue", requeue)
		if err := msg.Nack(false, requeue); err != nil {
			n.mylog.Action("nack_failed").Error("Failed to nack", err)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		n.mylog.Action("ack_failed").Error("Failed to ack", err)
	}
}

func (n *Notification) processMsg(msg amqp.Delivery) error {
	upd, err := decode(msg.Body)
	if err != nil {
		return err
	}

	n.mylog.WithGroup("details").With(
		"tenant_id", upd.TenantID,
		"order_id", upd.OrderID,
		"order_number", upd.OrderNumber,
		"new_status", upd.NewStatus.String(),
	).Action("notification_received").Info("Received status update for order")

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err = fmt.Fprintln(n.out, Format(upd))
	return err
}

func decode(body []byte) (models.StatusUpdateMessage, error) {
	var upd models.StatusUpdateMessage
	if err := json.Unmarshal(body, &upd); err != nil {
		return upd, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if upd.OrderID == "" {
		return upd, fmt.Errorf("%w: no order id", errMalformed)
	}
	st, err := models.ParseStatus(string(upd.NewStatus))
	if err != nil {
		return upd, fmt.Errorf("%w: %w", errMalformed, err)
	}
	upd.NewStatus = st
	if upd.OldStatus != "" {
		if upd.OldStatus, err = models.ParseStatus(string(upd.OldStatus)); err != nil {
			return upd, fmt.Errorf("%w: %w", errMalformed, err)
		}
	}
	return upd, nil
}

// Format renders the line printed for one status change.
func Format(upd models.StatusUpdateMessage) string {
	who := upd.ChangedBy
	if who == "" {
		who = "unknown"
	}
	if upd.OldStatus == "" {
		return fmt.Sprintf("Notification for order #%d (%s): placed as %s by %s.",
			upd.OrderNumber, upd.OrderID, upd.NewStatus, who)
	}
	return fmt.Sprintf("Notification for order #%d (%s): status changed from %s to %s by %s.",
		upd.OrderNumber, upd.OrderID, upd.OldStatus, upd.NewStatus, who)
}
