package core

import (
	"context"

	"orderboard/pkg/models"
)

type IPublisher interface {
	PublishStatusUpdate(ctx context.Context, msg models.StatusUpdateMessage) error
	Close() error
}
