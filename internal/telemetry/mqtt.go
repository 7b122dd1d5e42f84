// Package telemetry publishes guidance snapshots to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"navcore/internal/guidance"
)

type Config struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	// Retain keeps the last snapshot on the broker for late subscribers.
	Retain bool `yaml:"retain"`
	// PublishTimeout bounds how long one publish may wait for the broker.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

const (
	DefaultTopic    = "navcore/guidance"
	DefaultClientID = "navcore"
)

// client is the subset of mqtt.Client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var connect = func(cfg Config) (client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// Publisher satisfies guidance.Publisher.
type Publisher struct {
	cfg Config
	c   client

	mu        sync.Mutex
	published uint64
	lastErr   string
}

func Dial(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("telemetry: broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	c, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, err)
	}
	log.Printf("telemetry connected broker=%s topic=%s", cfg.Broker, cfg.Topic)
	return &Publisher{cfg: cfg, c: c}, nil
}

func (p *Publisher) Publish(s guidance.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}
	token := p.c.Publish(p.cfg.Topic, 0, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return p.record(fmt.Errorf("telemetry: publish %s: timed out after %s", p.cfg.Topic, p.cfg.PublishTimeout))
	}
	if err := token.Error(); err != nil {
		return p.record(fmt.Errorf("telemetry: publish %s: %w", p.cfg.Topic, err))
	}
	return p.record(nil)
}

func (p *Publisher) record(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr = err.Error()
		return err
	}
	p.published++
	p.lastErr = ""
	return nil
}

// Stats reports the number of successful publishes and the last error.
func (p *Publisher) Stats() (published uint64, lastErr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.lastErr
}

func (p *Publisher) Close() error {
	p.c.Disconnect(250)
	return nil
}
