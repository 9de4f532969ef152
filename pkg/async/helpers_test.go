package async

import (
	"context"

	"github.com/platinummonkey/eventbus/pkg/dispatch"
)

type funcTask func(ctx context.Context)

func (f funcTask) Execute(ctx context.Context) { f(ctx) }
func (funcTask) Impair()                       {}

type nopDeliverer struct{ name string }

func (nopDeliverer) Deliver(context.Context, []dispatch.Task) error { return nil }

// closedLoop returns a loop that runs tasks and then exits
func closedLoop(tasks ...dispatch.Task) *dispatch.Loop {
	q := dispatch.NewTaskQueue()
	_ = q.Append(tasks...)
	q.Close(nil)
	return dispatch.NewLoop(q, nil, nil)
}
