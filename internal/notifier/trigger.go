package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/acme/importflow/internal/task"
)

// Dispatcher fans events out to subscribed webhooks via the task queue,
// one delivery task per registration.
type Dispatcher struct {
	engine *Engine
	queue  task.Queue
}

// NewDispatcher wires the engine onto the queue.
func NewDispatcher(engine *Engine, queue task.Queue) *Dispatcher {
	return &Dispatcher{engine: engine, queue: queue}
}

// TriggerEvent enqueues one delivery per enabled registration subscribed
// to eventType and returns how many were scheduled. Delivery faults never
// propagate back to the caller.
func (d *Dispatcher) TriggerEvent(ctx context.Context, eventType string, payload map[string]any) (int, error) {
	webhooks, err := d.engine.webhooks.ListByEvent(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("failed to list webhooks for %s: %w", eventType, err)
	}

	scheduled := 0
	for _, webhook := range webhooks {
		id := webhook.ID
		err := d.queue.Enqueue(task.Task{
			Name:        fmt.Sprintf("webhook:%d:%s", id, eventType),
			MaxAttempts: 1, // retry/backoff lives inside the engine
			Run: func(ctx context.Context, attempt int) error {
				result, err := d.engine.Deliver(ctx, id, payload)
				if err != nil {
					return err
				}
				log.Printf("[WEBHOOK] delivered %s to %d: status=%s attempts=%d",
					eventType, id, result.Status, result.Attempts)
				return nil
			},
		})
		if err != nil {
			log.Printf("[WEBHOOK] failed to enqueue delivery to %d: %v", id, err)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}
