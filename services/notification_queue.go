package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"lendingapp/models"
	"lendingapp/utils"
)

// ErrNotificationQueueFull - очередь уведомлений переполнена, письмо не будет отправлено
var ErrNotificationQueueFull = errors.New("notification queue is full")

const defaultNotificationQueueSize = 100

// NotificationQueue отправляет уведомления в фоне, чтобы медленный SMTP
// не задерживал запрос администратора. Очередь ограничена.
type NotificationQueue struct {
	next    LoanNotifier
	jobs    chan models.Loan
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewNotificationQueue запускает обработчик очереди
func NewNotificationQueue(next LoanNotifier, size int, timeout time.Duration) *NotificationQueue {
	if size <= 0 {
		size = defaultNotificationQueueSize
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	q := &NotificationQueue{
		next:    next,
		jobs:    make(chan models.Loan, size),
		timeout: timeout,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// NotifyLoanStatus ставит уведомление в очередь и сразу возвращается
func (q *NotificationQueue) NotifyLoanStatus(ctx context.Context, loan *models.Loan) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrNotificationQueueFull
	}

	select {
	case q.jobs <- *loan:
		return nil
	default:
		return ErrNotificationQueueFull
	}
}

// Close дожидается отправки уже поставленных уведомлений
func (q *NotificationQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *NotificationQueue) run() {
	defer q.wg.Done()

	for loan := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.next.NotifyLoanStatus(ctx, &loan); err != nil {
			utils.LogError("Ошибка уведомления по кредиту %d: %v", loan.ID, err)
		}
		cancel()
	}
}
