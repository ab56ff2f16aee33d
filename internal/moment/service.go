package moment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"firefly-live/internal/broker"
)

// DurableStore is the authoritative moment store.
type DurableStore interface {
	SaveMoment(ctx context.Context, m *Moment) error
}

// Publisher is the broker producer side consumed by the service.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Service is the producing side of the moment pipeline: durable insert
// first, then one broker message for the fan-out consumers.
type Service struct {
	repo     DurableStore
	producer Publisher
	feeds    *FeedStore
}

func NewService(repo DurableStore, producer Publisher, feeds *FeedStore) *Service {
	return &Service{repo: repo, producer: producer, feeds: feeds}
}

func (s *Service) Post(ctx context.Context, m *Moment) error {
	if m.CreateTime.IsZero() {
		m.CreateTime = time.Now()
	}
	if err := s.repo.SaveMoment(ctx, m); err != nil {
		return fmt.Errorf("save moment: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode moment event: %w", err)
	}
	if err := s.producer.Publish(ctx, broker.RouteMoment, body); err != nil {
		return fmt.Errorf("publish moment event: %w", err)
	}
	return nil
}

func (s *Service) SubscribedMoments(ctx context.Context, userID int64) ([]Moment, error) {
	return s.feeds.Feed(ctx, userID)
}
