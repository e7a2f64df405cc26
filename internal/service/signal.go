package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/totegamma/graphdoc/internal/domain"
)

type SignalService struct {
	rdb redis.UniversalClient
}

func NewSignalService(redisClient redis.UniversalClient) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, change domain.Change) error {

	jsonstr, err := json.Marshal(change)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, domain.Channel(change.Type), jsonstr).Err()
	if err != nil {
		return errors.Wrap(err, "SignalService.Publish")
	}

	return nil
}

// Realtime forwards changes of the resource types most recently received on
// input to output until ctx is done or input is closed.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Change) {
	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()

	messages := pubsub.Channel()
	var current []string

	for {
		select {
		case <-ctx.Done():
			return
		case types, ok := <-input:
			if !ok {
				return
			}
			if len(current) > 0 {
				if err := pubsub.Unsubscribe(ctx, current...); err != nil {
					slog.ErrorContext(ctx, "unsubscribe failed", slog.String("error", err.Error()), slog.String("module", "signal"))
				}
			}
			current = channels(types)
			if len(current) > 0 {
				if err := pubsub.Subscribe(ctx, current...); err != nil {
					slog.ErrorContext(ctx, "subscribe failed", slog.String("error", err.Error()), slog.String("module", "signal"))
				}
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			change, err := decodeChange(msg.Payload)
			if err != nil {
				slog.WarnContext(ctx, "malformed change", slog.String("error", err.Error()), slog.String("module", "signal"))
				continue
			}
			select {
			case output <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}

func channels(types []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(types))
	for _, t := range types {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, domain.Channel(t))
	}
	return out
}

func decodeChange(payload string) (domain.Change, error) {
	var change domain.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return domain.Change{}, err
	}
	if change.Type == "" || change.ID == "" {
		return domain.Change{}, errors.New("change without type or id")
	}
	return change, nil
}
