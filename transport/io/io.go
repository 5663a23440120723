// Package io provides a broker-less transport that appends bridged messages
// to a file as JSON lines and tails that file for subscribers. Pointing it at
// "-" exports to standard output instead; such a transport cannot be
// subscribed to. It registers itself on import.
package io

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/signalflow/internal/runtime/jsoncodec"
	"github.com/drblury/signalflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFile is used when the config names no file.
const DefaultFile = "signalflow.jsonl"

// Stdout selects standard output as the export target.
const Stdout = "-"

var (
	ErrClosed    = errors.New("signalflow: io transport is closed")
	ErrWriteOnly = errors.New("signalflow: io transport on stdout cannot be subscribed to")
)

// PollInterval is how long a subscriber waits at end of file before reading
// again.
var PollInterval = 50 * time.Millisecond

// fileConfig is implemented by configs that name the transport file.
type fileConfig interface {
	GetTransportFile() string
}

func init() {
	Register()
}

// Register adds the io transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build opens nothing yet: the publisher creates the file on first publish
// and each subscription opens its own reader.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := DefaultFile
	if fc, ok := cfg.(fileConfig); ok && fc.GetTransportFile() != "" {
		path = fc.GetTransportFile()
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	logger = logger.With(watermill.LogFields{"file": path})

	pub := &Publisher{path: path, logger: logger}
	if path == Stdout {
		pub.out = os.Stdout
	}
	return transport.Transport{
		Publisher:  pub,
		Subscriber: &Subscriber{path: path, logger: logger, closing: make(chan struct{})},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// record is one line of the file.
type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends one line per message.
type Publisher struct {
	path   string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	closed bool
}

// Publish writes messages in order. A message that fails to encode stops the
// batch; the ones before it are already written.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.out == nil {
		f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		p.file, p.out = f, f
	}

	for _, msg := range messages {
		line, err := jsoncodec.Marshal(record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		if _, err := p.out.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file if the publisher opened one.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// Subscriber tails the file from its start, delivering the lines of one
// topic. Each message must be acked or nacked before the next is read.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// Subscribe starts tailing. The channel closes when ctx ends or the
// subscriber is closed.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.path == Stdout {
		return nil, ErrWriteOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		switch {
		case err == nil:
			line := partial
			partial = nil
			if !s.deliver(ctx, line, topic, out) {
				return
			}
		case errors.Is(err, io.EOF):
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
			}
		default:
			s.logger.Error("Failed to read transport file", err, nil)
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, line []byte, topic string, out chan<- *message.Message) bool {
	var rec record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("Skipping malformed line", err, nil)
		return true
	}
	if rec.Topic != topic {
		return true
	}

	msg := message.NewMessage(rec.UUID, rec.Payload)
	if rec.Metadata != nil {
		msg.Metadata = rec.Metadata
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Message nacked, not redelivered", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	}
	return true
}

// Close ends every subscription and waits for their readers to stop.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
