// Package engine assembles the dispatch core of the event bus.
//
// An Engine owns two task queues, each drained by a dispatch loop running on
// its own thread pool. Synchronous publishes block until their batch was
// delivered; asynchronous publishes return at once. Handler timeouts are
// watched by a shared scheduler: a handler exceeding its timeout is reported
// through the impairment callback and its loop continues on a fresh worker.
//
// # Usage
//
//	eng, err := engine.New(cfg.Dispatch,
//	    engine.WithLogger(logger),
//	    engine.WithMetrics(metrics),
//	    engine.WithImpairmentCallback(func(h delivery.Handler) {
//	        registry.Exclude(h)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	// blocks until both handlers returned
//	err = eng.Send(ctx, event, auditHandler, mailHandler)
//
//	// returns immediately
//	err = eng.Post(ctx, event, indexHandler)
//
// # Reentrant publishing
//
// Handlers may publish from within a delivery, synchronously or not, as long
// as they pass on the context they were invoked with. That context
// identifies the worker the handler runs on, which the engine needs to
// deliver nested synchronous batches without deadlocking.
package engine
