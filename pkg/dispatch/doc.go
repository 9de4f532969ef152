// Package dispatch provides the dispatch loop that drives event delivery.
//
// # Overview
//
// A Loop pulls tasks from a Producer (normally a TaskQueue), arms a
// watchdog for each task through a Scheduler, executes the task and disarms
// the watchdog again. A loop can be held (paused in place while a
// continuation keeps draining its queue), resumed, handed over to a fresh
// goroutine, or stopped.
//
// # Task Queue
//
//	q := dispatch.NewTaskQueue()
//	_ = q.Append(a, b)  // tail, contiguous
//	_ = q.Push(c, d)    // head, contiguous, ahead of a and b
//	q.Close(final)      // final is the last task Next ever returns
//
// # Watchdog
//
// The scheduler fires a watchdog when a task runs longer than the configured
// timeout. The watchdog impairs the task's handler and hands the loop over so
// the remaining tasks keep flowing; it never interrupts the running task.
//
//	sched := dispatch.NewScheduler(5*time.Second, clockwork.NewRealClock())
//	loop := dispatch.NewLoop(q, sched, target)
//	go loop.Run(ctx)
//
// # Related Packages
//
//   - pkg/async: thread pool that runs loops
//   - pkg/delivery: synchronous and asynchronous delivery strategies
package dispatch
