package reservation

import (
	"loteo/internal/domain/lotfeed"
	"loteo/internal/domain/notification"
)

// Publisher receives lot status changes for the live map.
type Publisher interface {
	Publish(event lotfeed.Event)
}

// PaidDispatcher sends the paid notification without blocking the caller.
type PaidDispatcher interface {
	Dispatch(ev notification.PaidEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(lotfeed.Event) {}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(notification.PaidEvent) {}
