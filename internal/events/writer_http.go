package events

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// HTTPWriter posts events in CloudEvents binary mode to the notification dispatcher.
type HTTPWriter struct {
	client cloudevents.Client
	target string
}

func NewHTTPWriter(target string) (*HTTPWriter, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("creating cloudevents client: %w", err)
	}
	return &HTTPWriter{client: client, target: target}, nil
}

func (h *HTTPWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	e.SetExtension("topic", topic)
	if result := h.client.Send(ctx, e); cloudevents.IsUndelivered(result) || !cloudevents.IsACK(result) {
		return fmt.Errorf("sending event %s to %s: %w", e.ID(), h.target, result)
	}
	zap.S().Named("http_writer").Debugw("event delivered", "type", e.Type(), "id", e.ID())
	return nil
}

func (h *HTTPWriter) Close(_ context.Context) error {
	return nil
}
