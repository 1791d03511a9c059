package notification

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Channel selects the outbound transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Message describes an outbound text.
type Message struct {
	Channel Channel
	To      string
	Body    string
	// Sensitive bodies (exported keys) are never written to logs.
	Sensitive bool
}

// Notifier delivers a message to the user's phone.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes messages to the log instead of delivering them.
type LoggerNotifier struct{}

func NewLoggerNotifier() *LoggerNotifier {
	return &LoggerNotifier{}
}

func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	body := message.Body
	if message.Sensitive {
		body = "[redacted]"
	}
	log.Printf("[NOTIFY] Mock %s to %s: %s", message.Channel, message.To, strings.ReplaceAll(body, "\n", " | "))
	return nil
}

// Async sends messages in the background so a slow or failing channel never
// delays the caller. Failures are logged and dropped.
type Async struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewAsync(notifier Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Async{notifier: notifier, timeout: timeout}
}

// Notify is fire-and-forget.
func (a *Async) Notify(message Message) {
	if a == nil || a.notifier == nil {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[NOTIFY] Panic while sending to %s: %v", message.To, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.notifier.Send(ctx, message); err != nil {
			log.Printf("[NOTIFY] Failed to send %s to %s: %v", message.Channel, message.To, err)
		}
	}()
}

// Wait blocks until in-flight sends finish.
func (a *Async) Wait() {
	a.wg.Wait()
}
