package audit

import "context"

// Queue decouples recording from sink latency. Append enqueues without
// blocking; when the buffer is full the event is dropped, which fits the
// best-effort contract. A Worker drains the queue into the real sink.
type Queue struct {
	inbox chan Event
}

func NewQueue(buffer int) *Queue {
	return &Queue{inbox: make(chan Event, buffer)}
}

func (q *Queue) Append(_ context.Context, event Event) error {
	select {
	case q.inbox <- event:
	default:
	}
	return nil
}

// Worker consumes queued events and persists them. Run returns when the
// context is cancelled; remaining buffered events are flushed first.
type Worker struct {
	sink  Sink
	queue *Queue
}

func NewWorker(sink Sink, queue *Queue) *Worker {
	return &Worker{sink: sink, queue: queue}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.flush(ctx.Err())
		case event := <-w.queue.inbox:
			if err := w.sink.Append(context.WithoutCancel(ctx), event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) flush(cause error) error {
	for {
		select {
		case event := <-w.queue.inbox:
			if err := w.sink.Append(context.Background(), event); err != nil {
				return err
			}
		default:
			return cause
		}
	}
}
