package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/config"
)

// Publisher fans lifecycle transitions out over NATS. When JetStream is
// enabled the stream is created on connect; plain publish otherwise.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger
}

// NewPublisher connects to the configured NATS server. Returns nil (and no
// error) when no URL is configured: event publishing is optional.
func NewPublisher(cfg config.NATSConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts := []nats.Option{
		nats.Name("fiatramp"),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(time.Duration(cfg.ReconnectWait)*time.Second))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, nats.Timeout(time.Duration(cfg.Timeout)*time.Second))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := &Publisher{conn: conn, logger: logger}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("jetstream context: %w", err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{"ramp.>"},
		}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
		}
		p.js = js
	}

	logger.WithField("url", cfg.URL).Info("NATS publisher connected")
	return p, nil
}

// Publish sends one event. Payloads are JSON-encoded with a publish
// timestamp wrapper.
func (p *Publisher) Publish(subject string, payload interface{}) error {
	if p == nil || p.conn == nil {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"subject":     subject,
		"publishedAt": time.Now().UTC().Format(time.RFC3339Nano),
		"data":        payload,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if p.js != nil {
		if _, err := p.js.Publish(subject, body); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		return nil
	}
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.WithField("error", err).Warn("NATS drain failed")
	}
}
