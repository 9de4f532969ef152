package dispatch

import "context"

// Task is a single unit of delivery work.
type Task interface {
	// Execute runs the task. Handler failures are handled by the task itself
	// and never escape Execute.
	Execute(ctx context.Context)

	// Impair marks the handler behind the task as unreliable. It is called by
	// the watchdog when the task exceeds its time budget.
	Impair()
}

// TimeoutExempt is implemented by tasks that must run without a watchdog.
type TimeoutExempt interface {
	TimeoutExempt() bool
}

// Producer hands out tasks to a Loop. Next blocks until a task is available
// and returns nil once no further task will be produced.
type Producer interface {
	Next() Task
}

// Deliverer delivers a batch of tasks.
type Deliverer interface {
	Deliver(ctx context.Context, tasks []Task) error
}

// HandoverTarget starts a continuation loop somewhere else.
type HandoverTarget interface {
	Execute(loop *Loop)
}

// Observer is notified about loop transitions.
type Observer interface {
	HandedOver(reason string)
	Held()
	Resumed()
}

type nullProducer struct{}

func (nullProducer) Next() Task { return nil }

type nullHandover struct{}

func (nullHandover) Execute(*Loop) {}

type nullObserver struct{}

func (nullObserver) HandedOver(string) {}
func (nullObserver) Held()             {}
func (nullObserver) Resumed()          {}

func isTimeoutExempt(task Task) bool {
	ex, ok := task.(TimeoutExempt)
	return ok && ex.TimeoutExempt()
}
