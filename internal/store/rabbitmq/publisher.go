package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ImageJobMessage is the body of every message on the image queue.
type ImageJobMessage struct {
	ToolCallID string `json:"tool_call_id"`
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	// amqp channels are not safe for concurrent publishes
	mu sync.Mutex
}

// DeclareTopology declares the main queue plus its retry and dead-letter
// queues. Publisher and consumer must agree on these arguments.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := RetryQueue(queue)
	dlqQ := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func RetryQueue(queue string) string { return queue + ".retry" }

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Enqueue publishes a persistent message for the job keyed by toolCallID.
func (p *Publisher) Enqueue(ctx context.Context, toolCallID string) error {
	return p.publish(ctx, p.queue, toolCallID, 0)
}

// Retry parks the message on the retry queue; it returns to the main queue
// after delay carrying attempt in its headers.
func (p *Publisher) Retry(ctx context.Context, toolCallID string, attempt int, delay time.Duration) error {
	return p.publish(ctx, RetryQueue(p.queue), toolCallID, delay, amqp.Table{AttemptHeader: int32(attempt)})
}

// AttemptHeader counts deliveries that went through the retry queue.
const AttemptHeader = "x-attempt"

// Attempt reads AttemptHeader; first deliveries report 0.
func Attempt(h amqp.Table) int {
	switch v := h[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (p *Publisher) publish(ctx context.Context, routingKey, toolCallID string, ttl time.Duration, headers ...amqp.Table) error {
	body, err := EncodeMessage(toolCallID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if len(headers) > 0 {
		msg.Headers = headers[0]
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}

func EncodeMessage(toolCallID string) ([]byte, error) {
	return json.Marshal(ImageJobMessage{ToolCallID: toolCallID})
}

// DecodeMessage parses a delivery body; an empty id is treated as malformed.
func DecodeMessage(body []byte) (string, error) {
	var m ImageJobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.ToolCallID == "" {
		return "", ErrEmptyToolCallID
	}
	return m.ToolCallID, nil
}
