package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"lendingapp/utils"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Ключи маршрутизации событий по кредитам
const (
	RoutingLoanSubmitted = "loan.submitted"
	RoutingLoanApproved  = "loan.approved"
	RoutingLoanRejected  = "loan.rejected"
	RoutingLoanDisbursed = "loan.disbursed"
	RoutingLoanCompleted = "loan.completed"
)

// LoanEvent - событие жизненного цикла кредита
type LoanEvent struct {
	ID         string    `json:"id"`
	LoanID     uint      `json:"loan_id"`
	UserID     uint      `json:"user_id"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewLoanEvent заполняет идентификатор и время события
func NewLoanEvent(loanID, userID uint, status string, amount float64, at time.Time) LoanEvent {
	return LoanEvent{
		ID:         uuid.NewString(),
		LoanID:     loanID,
		UserID:     userID,
		Status:     status,
		Amount:     amount,
		OccurredAt: at.UTC(),
	}
}

// Publisher публикует события; реализации должны быть безопасны для горутин
type Publisher interface {
	PublishLoanEvent(ctx context.Context, routingKey string, event LoanEvent) error
	Close()
}

// FallbackPublisher используется, когда брокер недоступен: события только логируются
type FallbackPublisher struct{}

func (p *FallbackPublisher) PublishLoanEvent(ctx context.Context, routingKey string, event LoanEvent) error {
	utils.LogInfo("Брокер недоступен, событие %s по кредиту %d не отправлено", routingKey, event.LoanID)
	return nil
}

func (p *FallbackPublisher) Close() {}

// amqpChannel - операции канала, которые нужны издателю
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// amqpConnection - соединение с брокером
type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type amqpConn struct {
	*amqp091.Connection
}

func (c amqpConn) Channel() (amqpChannel, error) {
	return c.Connection.Channel()
}

// AMQPPublisher публикует события в topic-exchange RabbitMQ
type AMQPPublisher struct {
	mu       sync.Mutex
	dial     func() (amqpConnection, error)
	conn     amqpConnection
	channel  amqpChannel
	exchange string
}

// NewAMQPPublisher подключается к брокеру и объявляет exchange
func NewAMQPPublisher(rawURL, exchange string, dialTimeout time.Duration) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	// Ограничиваем время подключения, чтобы старт и переподключение не зависали
	dial := func() (amqpConnection, error) {
		conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к брокеру: %w", err)
		}
		return amqpConn{conn}, nil
	}

	return newAMQPPublisher(dial, exchange)
}

func newAMQPPublisher(dial func() (amqpConnection, error), exchange string) (*AMQPPublisher, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}

	p := &AMQPPublisher{dial: dial, conn: conn, exchange: exchange}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}

	return p, nil
}

// Connect возвращает AMQP-издателя или, если брокер недоступен, FallbackPublisher
func Connect(rawURL, exchange string, dialTimeout time.Duration) Publisher {
	if strings.TrimSpace(rawURL) == "" {
		utils.LogInfo("Адрес брокера не задан, события публикуются в лог")
		return &FallbackPublisher{}
	}

	p, err := NewAMQPPublisher(rawURL, exchange, dialTimeout)
	if err != nil {
		utils.LogError("Брокер недоступен, используется резервный издатель: %v", err)
		return &FallbackPublisher{}
	}
	return p
}

func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("ошибка открытия канала: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("ошибка объявления exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// reconnectLocked закрывает старый канал и, если соединение разорвано
// (например, брокер перезапустился), подключается заново
func (p *AMQPPublisher) reconnectLocked() error {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		if p.conn != nil {
			p.conn.Close()
		}
		conn, err := p.dial()
		if err != nil {
			p.conn = nil
			return err
		}
		p.conn = conn
	}

	return p.openChannel()
}

// PublishLoanEvent отправляет событие; при ошибке канал переоткрывается один раз
func (p *AMQPPublisher) PublishLoanEvent(ctx context.Context, routingKey string, event LoanEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Прошлое переподключение могло не удаться
	if p.channel == nil {
		if err := p.reconnectLocked(); err != nil {
			return err
		}
	}

	if err := p.publishLocked(ctx, routingKey, event.ID, body); err != nil {
		utils.LogError("Ошибка публикации %s, переоткрываем канал: %v", routingKey, err)
		if reopenErr := p.reconnectLocked(); reopenErr != nil {
			return reopenErr
		}
		return p.publishLocked(ctx, routingKey, event.ID, body)
	}

	return nil
}

func (p *AMQPPublisher) publishLocked(ctx context.Context, routingKey, messageID string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Close закрывает канал и соединение
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("некорректный адрес брокера: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("адрес брокера должен начинаться с amqp:// или amqps://")
	}
	return clean, nil
}
