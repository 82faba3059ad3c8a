// Package redislive delivers latest-reading pushes over redis pub/sub.
// Ingestion publishes each reading to a per-owner channel; a subscription
// starts with a snapshot of the most recent stored reading (possibly none)
// and then forwards every push until cancelled.
package redislive

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
)

// LatestReader supplies the initial snapshot. The postgres store implements it.
type LatestReader interface {
	LatestReading(ctx context.Context, ownerID model.PublicUserID) (model.SensorReading, error)
}

type Source struct {
	client *redis.Client
	latest LatestReader
}

func NewSource(client *redis.Client, latest LatestReader) *Source {
	return &Source{client: client, latest: latest}
}

func channelFor(ownerID model.PublicUserID) string {
	return "readings:" + ownerID.String()
}

type readingPayload struct {
	OwnerID      model.PublicUserID `json:"ownerId"`
	Timestamp    *time.Time         `json:"timestamp"`
	Temperature  *float64           `json:"temperature"`
	Humidity     *float64           `json:"humidity"`
	SoilMoisture *float64           `json:"soilMoisture"`
}

func marshalReading(reading model.SensorReading) ([]byte, error) {
	return json.Marshal(readingPayload{
		OwnerID:      reading.OwnerID,
		Timestamp:    reading.Timestamp,
		Temperature:  reading.Temperature,
		Humidity:     reading.Humidity,
		SoilMoisture: reading.SoilMoisture,
	})
}

func unmarshalReading(data []byte) (model.SensorReading, error) {
	var p readingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.SensorReading{}, err
	}
	return model.SensorReading{
		OwnerID:      p.OwnerID,
		Timestamp:    p.Timestamp,
		Temperature:  p.Temperature,
		Humidity:     p.Humidity,
		SoilMoisture: p.SoilMoisture,
	}, nil
}

// PublishReading fans a freshly ingested reading out to live subscribers.
func (s *Source) PublishReading(ctx context.Context, reading model.SensorReading) error {
	data, err := marshalReading(reading)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, channelFor(reading.OwnerID), data).Err(); err != nil {
		return backend.Unavailable(err.Error())
	}
	return nil
}

func (s *Source) SubscribeLatestReading(ctx context.Context, ownerID model.PublicUserID, onData func(model.SensorReading, bool), onError func(error)) (backend.Handle, error) {
	sub := s.client.Subscribe(ctx, channelFor(ownerID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, backend.Unavailable(err.Error())
	}

	// Snapshot after the subscription is confirmed, so a push landing in
	// between is not lost.
	reading, err := s.latest.LatestReading(ctx, ownerID)
	switch {
	case backend.IsNotFound(err):
		onData(model.SensorReading{}, false)
	case err != nil:
		_ = sub.Close()
		return nil, err
	default:
		onData(reading, true)
	}

	h := &subscription{sub: sub, done: make(chan struct{})}
	go h.pump(onData, onError)
	return h, nil
}

type subscription struct {
	sub  *redis.PubSub
	once sync.Once
	done chan struct{}
}

func (h *subscription) Cancel() {
	h.once.Do(func() {
		close(h.done)
		_ = h.sub.Close()
	})
}

func (h *subscription) pump(onData func(model.SensorReading, bool), onError func(error)) {
	for msg := range h.sub.Channel() {
		reading, err := unmarshalReading([]byte(msg.Payload))
		if err != nil {
			log.Printf("live payload decode error: %v", err)
			continue
		}
		onData(reading, true)
	}
	// The message channel closes on Cancel or when the connection is gone
	// for good; only the latter is an error.
	select {
	case <-h.done:
	default:
		onError(backend.Unavailable("live stream closed"))
	}
}
