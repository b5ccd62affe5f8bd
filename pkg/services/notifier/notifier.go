/*
2019 © Postgres.ai
*/

// Package notifier delivers customer e-mails in the background.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"
)

// DefaultQueueSize defines the default capacity of the queue.
const DefaultQueueSize = 100

// ErrQueueFull means the message was dropped because the queue is full.
var ErrQueueFull = errors.New("notification queue is full")

// NotificationError describes an undelivered message.
type NotificationError struct {
	To      string
	Subject string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failed to notify %s about %q: %v", e.To, e.Subject, e.Err)
}

// Unwrap returns the cause.
func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Queue buffers messages and delivers them from one worker.
// Every message gets at most one delivery attempt.
type Queue struct {
	mailer   Mailer
	messages chan Message
	wg       sync.WaitGroup
}

// NewQueue creates a new queue.
func NewQueue(mailer Mailer, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Queue{
		mailer:   mailer,
		messages: make(chan Message, size),
	}
}

// Start runs the worker delivering queued messages until the context is done.
// Pending messages are dropped on exit.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)

	go q.run(ctx)
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			if pending := q.Len(); pending > 0 {
				log.Msg(fmt.Sprintf("Notification queue stopped, %d messages dropped", pending))
			}

			return

		case msg := <-q.messages:
			q.deliver(msg)
		}
	}
}

// Wait blocks until the worker exits.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) deliver(msg Message) {
	if err := q.mailer.Send(msg); err != nil {
		log.Err(&NotificationError{To: msg.To, Subject: msg.Subject, Err: err})
		return
	}

	log.Dbg("Notification sent:", msg.Subject)
}

// Enqueue adds the message without blocking.
func (q *Queue) Enqueue(msg Message) error {
	select {
	case q.messages <- msg:
		return nil
	default:
		return &NotificationError{To: msg.To, Subject: msg.Subject, Err: ErrQueueFull}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	return len(q.messages)
}

// NotifyProtocol queues a protocol confirmation.
func (q *Queue) NotifyProtocol(email, protocol string) error {
	return q.Enqueue(Message{
		To:      email,
		Subject: "Protocolo da sua solicitação",
		Text:    fmt.Sprintf("Sua solicitação foi registrada com sucesso!\nProtocolo: %s", protocol),
		HTML:    fmt.Sprintf("<p>Sua solicitação foi registrada com sucesso!<br>Protocolo: <b>%s</b></p>", protocol),
	})
}

// SendCode queues a verification code.
func (q *Queue) SendCode(email, code string) error {
	return q.Enqueue(Message{
		To:      email,
		Subject: "Código de verificação",
		Text:    fmt.Sprintf("Seu código de verificação é: %s", code),
		HTML:    fmt.Sprintf("<p>Seu código de verificação é: <b>%s</b></p>", code),
	})
}
