package service

import (
	"context"

	"classifieds/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
