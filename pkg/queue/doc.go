// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package queue implements a bounded, in-memory job queue for bulk background
// work such as generating one artefact per catalog item.
//
// A Queue holds a flat set of item records, a mutable Config and three run
// flags. Start launches a single dispatcher goroutine that hands queued items
// to concurrently running workers while enforcing:
//
//   - Config.Concurrency: the maximum number of attempts in flight
//   - Config.DispatchDelay: the minimum spacing between two dispatch starts,
//     applied globally across all workers
//   - Config.MaxRetries: how many extra attempts a failing item receives
//
// Failed attempts are re-queued at the back of the FIFO so a stream of
// failures cannot starve items that were never attempted. A processor error
// or panic only ever affects its own item.
//
// Hosts observe progress through Stats, which is safe to call at any time, or
// by subscribing to the events published on every state transition:
//
//	q, err := queue.New(proc, queue.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	q.Subscribe(queue.TopicAll, func(ctx context.Context, data any) {
//	    ev := data.(queue.Event)
//	    render(ev.Stats)
//	})
//	_ = q.AddItems(inputs...)
//	_ = q.Start()
//	_ = q.Wait(ctx)
package queue
