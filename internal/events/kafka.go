package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/internal/faulttolerance"
)

const flushTimeoutMs = 5000

// producer is the part of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

type KafkaConfig struct {
	Broker string
	Topic  string
}

// KafkaPublisher produces JSON encoded events to one topic. Produce calls go
// through a circuit breaker so a dead broker costs one failed call per
// timeout window instead of one per trade.
type KafkaPublisher struct {
	producer producer
	topic    string
	breaker  *faulttolerance.CircuitBreaker
	logger   *logrus.Entry

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewKafkaPublisher(cfg KafkaConfig, logger *logrus.Logger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Broker,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	pub := newKafkaPublisher(p, cfg.Topic, logger)
	pub.logger.WithField("broker", cfg.Broker).Info("Kafka producer initialized")
	return pub, nil
}

func newKafkaPublisher(p producer, topic string, logger *logrus.Logger) *KafkaPublisher {
	pub := &KafkaPublisher{
		producer: p,
		topic:    topic,
		breaker: faulttolerance.NewCircuitBreaker(faulttolerance.CircuitBreakerConfig{
			Name:        "kafka-" + topic,
			MaxFailures: 5,
		}, logger),
		logger: logger.WithFields(logrus.Fields{"component": "events", "topic": topic}),
	}
	pub.wg.Add(1)
	go pub.deliveryReports()
	return pub
}

// deliveryReports drains the producer's event channel until it is closed.
func (p *KafkaPublisher) deliveryReports() {
	defer p.wg.Done()
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.WithError(ev.TopicPartition.Error).WithField("key", string(ev.Key)).Error("event delivery failed")
			}
		case kafka.Error:
			p.logger.WithError(ev).Warn("kafka error")
		}
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e TradeEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	topic := p.topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.Key()),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := p.breaker.Execute(ctx, func() error { return p.producer.Produce(msg, nil) }); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes outstanding messages and stops the delivery goroutine.
func (p *KafkaPublisher) Close() {
	p.closeOnce.Do(func() {
		if left := p.producer.Flush(flushTimeoutMs); left > 0 {
			p.logger.Warnf("%d events still unflushed at shutdown", left)
		}
		p.producer.Close()
		p.wg.Wait()
		p.logger.Info("Kafka producer closed")
	})
}
