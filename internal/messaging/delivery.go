package messaging

import (
	"context"
	"sync"

	"github.com/edume/internal/model"
)

// Delivery: исход отложенной записи сообщения. Message уже видно в проекции чата
// на момент возврата из Send; при ошибке оно удаляется до закрытия Done.
type Delivery struct {
	Message model.Message

	done chan struct{}
	once sync.Once
	err  error
}

func newDelivery(m model.Message) *Delivery {
	return &Delivery{Message: m, done: make(chan struct{})}
}

func (d *Delivery) finish(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Done закрывается, когда запись подтверждена или откатана.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Err: nil, пока доставка не завершена или если она успешна.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait ждёт завершения доставки. Отмена ctx не отменяет саму запись.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
