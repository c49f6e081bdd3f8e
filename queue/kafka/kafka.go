// Package kafka moves queue payloads over Kafka.
//
// Every tenant shares one topic.  The message key carries the tenant
// name, so a tenant's messages stay on one partition and the consumer
// can rebuild the right context for each group of messages it reads.
package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// attemptHeader counts redeliveries of a message.
const attemptHeader = "keel-attempt"

// Writer is the subset of *kafkago.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Reader is the subset of *kafkago.Reader used here.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

var (
	_ Writer = (*kafkago.Writer)(nil)
	_ Reader = (*kafkago.Reader)(nil)
)

// NewWriter returns a writer that hashes on the key, so each tenant keeps
// its partition.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewReader returns a consumer-group reader for topic.
func NewReader(brokers []string, topic, group string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Sender is an appctx.Queue that writes one tenant's payloads.
type Sender struct {
	w   Writer
	key []byte
}

// NewSender binds w to the tenant called key.
func NewSender(w Writer, key string) *Sender {
	return &Sender{w: w, key: []byte(key)}
}

// Send implements appctx.Queue.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	msg := kafkago.Message{Key: s.key, Value: payload}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

func attempts(m kafkago.Message) int {
	for _, h := range m.Headers {
		if h.Key == attemptHeader {
			n, _ := strconv.Atoi(string(h.Value))
			return n
		}
	}
	return 0
}

func withAttempts(m kafkago.Message, n int) kafkago.Message {
	out := kafkago.Message{Key: m.Key, Value: m.Value}
	for _, h := range m.Headers {
		if h.Key != attemptHeader {
			out.Headers = append(out.Headers, h)
		}
	}
	out.Headers = append(out.Headers, kafkago.Header{Key: attemptHeader, Value: []byte(strconv.Itoa(n))})
	return out
}
