package brokermessage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orderboard/internal/orderstore/app/core"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
	"orderboard/pkg/rabbitmq"
)

// Broker is the publishing half of *rabbitmq.RabbitMQ.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

type Publisher struct {
	mb    Broker
	mylog logger.Logger
}

func New(mb Broker, mylog logger.Logger) *Publisher {
	return &Publisher{mb: mb, mylog: mylog}
}

var _ core.IPublisher = (*Publisher)(nil)

// PublishStatusUpdate fans the change out on the status exchange. The
// routing key is informational since the exchange is a fanout.
func (p *Publisher) PublishStatusUpdate(ctx context.Context, msg models.StatusUpdateMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	key := "order.status." + strings.ToLower(string(msg.NewStatus))
	if err := p.mb.Publish(ctx, rabbitmq.StatusExchange, key, body); err != nil {
		return fmt.Errorf("publish status update: %w", err)
	}
	p.mylog.Action("status_published").Debug("Status update published",
		"order_id", msg.OrderID, "new_status", msg.NewStatus.String())
	return nil
}

func (p *Publisher) Close() error {
	return p.mb.Close()
}
