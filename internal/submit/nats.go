package submit

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"github.com/nats-io/nats.go"
)

const (
	defaultReconnectWait = 2 * time.Second
	defaultDrainTimeout  = 5 * time.Second
)

// Message is the wire form of one reading.
type Message struct {
	Host     string `json:"host"`
	Module   string `json:"module"`
	Instance string `json:"instance"`
	Record   string `json:"record"`
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Dial connects to url with reconnects enabled. Connection state changes
// are logged.
func Dial(url, name string, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(defaultReconnectWait),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.New().WithData(ErrConnectFailed, struct {
			URL   string
			Error string
		}{URL: url, Error: err.Error()})
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("Connected to NATS")

	return conn, nil
}

// Subject returns the subject a module's readings are published on.
func Subject(prefix, module string) string {
	return prefix + "." + module
}

// Publisher sends readings to NATS as JSON messages.
type Publisher struct {
	conn   Conn
	prefix string
	host   string
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewPublisher(conn Conn, prefix, host string, log logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		host:   host,
		log:    log.With("nats-publisher"),
	}
}

func (p *Publisher) Submit(module, instance, record string) error {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errFactory.New(ErrClosed)
	}

	data, err := json.Marshal(Message{
		Host:     p.host,
		Module:   module,
		Instance: instance,
		Record:   record,
	})
	if err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	if err := p.conn.Publish(Subject(p.prefix, module), data); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	return nil
}

// Close drains the connection so buffered readings reach the server.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.conn.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to drain NATS connection")
		return errors.New().Wrap(ErrPublishFailed, err)
	}

	return nil
}

// Receiver stores readings published by other collectors.
type Receiver struct {
	writer *sensors.Writer
	log    logger.Logger
}

func NewReceiver(w *sensors.Writer, log logger.Logger) *Receiver {
	return &Receiver{writer: w, log: log.With("nats-receiver")}
}

// Handle decodes one message and writes it.
func (r *Receiver) Handle(data []byte) error {
	errFactory := errors.New()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return errFactory.Wrap(ErrInvalidMessage, err)
	}

	if msg.Module != Module {
		return errFactory.WithData(ErrUnknownModule, msg.Module)
	}

	if strings.TrimSpace(msg.Host) == "" || msg.Instance == "" || msg.Record == "" {
		return errFactory.WithData(ErrInvalidMessage, msg)
	}

	return r.writer.Write(msg.Host, msg.Instance, msg.Record)
}

// Subscribe attaches the receiver to every module under prefix.
func (r *Receiver) Subscribe(conn *nats.Conn, prefix string) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(prefix+".>", func(m *nats.Msg) {
		if err := r.Handle(m.Data); err != nil {
			r.log.Warn().Err(err).Str("subject", m.Subject).Msg("Dropping received reading")
		}
	})
	if err != nil {
		return nil, errors.New().Wrap(ErrSubscribe, err)
	}

	r.log.Info().Str("subject", prefix+".>").Msg("Receiving readings")

	return sub, nil
}
