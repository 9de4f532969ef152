// Package async provides the goroutine machinery behind event delivery.
//
// # Overview
//
// This package owns every goroutine the engine starts: a bounded thread pool
// of reusable workers, the two-party Rendezvous used to wait for marker tasks,
// and the per-worker state that tracks reentrant synchronous delivery.
//
// # Key Types
//
// ThreadPool: LRU-recycled workers that run dispatch loops
//
//	pool := async.NewThreadPool("sync", 20, async.WithLogger(logger))
//	defer pool.Close()
//
//	pool.Submit(loop, callback) // never blocks
//
// Any code running on a worker can ask what the worker is doing, given the
// context the worker passed down:
//
//	cb := pool.LookupCallback(ctx, defaultDeliverer)
//	loop := pool.LookupLoop(ctx, nil)
//
// Rendezvous: two-party handshake with one-shot timeout degradation
//
//	r := async.NewRendezvous()
//	go func() { r.Wait() }()
//	ok := r.WaitAttempt(time.Second)
//
// SafeGo: start a goroutine with panic recovery and logging
//
//	async.SafeGo(logger, "unpooled worker", func() { loop.Run(ctx) })
//
// # Related Packages
//
//   - pkg/dispatch: loops executed by pool workers
//   - pkg/delivery: uses worker lookups to pick a delivery strategy
package async
