// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"time"

	"github.com/vulntor/batchq/pkg/event"
)

// Event topics published by a Queue.
const (
	TopicItemsAdded     = "items.added"
	TopicItemDispatched = "item.dispatched"
	TopicItemCompleted  = "item.completed"
	TopicItemRetrying   = "item.retrying"
	TopicItemFailed     = "item.failed"

	TopicStarted       = "queue.started"
	TopicPaused        = "queue.paused"
	TopicResumed       = "queue.resumed"
	TopicStopped       = "queue.stopped"
	TopicDrained       = "queue.drained"
	TopicCleared       = "queue.cleared"
	TopicRetryFailed   = "queue.retry_failed"
	TopicConfigUpdated = "queue.config_updated"

	// TopicAll receives every event above. Each event carries a fresh
	// statistics snapshot, so progress displays only need this topic.
	TopicAll = event.Wildcard
)

// Event is the payload delivered to subscribers.
type Event struct {
	Topic string
	Time  time.Time
	// Item is set for item.* topics and holds a copy of the record after
	// the transition.
	Item *Item
	// Stats is the snapshot taken right after the transition.
	Stats Stats
}

// publish delivers ev to subscribers of its topic and of TopicAll.
// It must be called without q.mu held.
func (q *Queue) publish(ev Event) {
	q.bus.Publish(context.Background(), ev.Topic, ev)
}
