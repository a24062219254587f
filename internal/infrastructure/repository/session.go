package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/passportlabs/scorer/internal/domain"
)

type SessionRepository struct {
	rdb *redis.Client
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

func sessionKey(token string) string {
	return "session:" + token
}

func (r *SessionRepository) Create(ctx context.Context, session domain.Session, ttl time.Duration) (string, error) {

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	payload, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	if ttl < 0 {
		ttl = 0
	}
	err = r.rdb.Set(ctx, sessionKey(token), payload, ttl).Err()
	if err != nil {
		return "", err
	}

	return token, nil
}

func (r *SessionRepository) Lookup(ctx context.Context, token string) (domain.Session, error) {

	raw, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, domain.NotFoundError{Resource: "session"}
		}
		return domain.Session{}, err
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, errors.Wrap(err, "malformed session payload")
	}

	return session, nil
}
