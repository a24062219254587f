package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
)

// EventService fans score events out to subscribers over redis pub/sub.
type EventService struct {
	rdb *redis.Client
}

func NewEventService(redisClient *redis.Client) *EventService {
	return &EventService{
		rdb: redisClient,
	}
}

func (s *EventService) Publish(ctx context.Context, event scorer.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, domain.EventChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Subscribe opens a pub/sub subscription on the score event channel.
// The caller owns the returned subscription and must close it.
func (s *EventService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, domain.EventChannel)
}
