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

type NonceRepository struct {
	rdb *redis.Client
}

func NewNonceRepository(rdb *redis.Client) *NonceRepository {
	return &NonceRepository{rdb: rdb}
}

func nonceKey(token string) string {
	return "nonce:" + token
}

func (r *NonceRepository) Create(ctx context.Context, ttl time.Duration) (domain.Nonce, error) {

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return domain.Nonce{}, err
	}

	nonce := domain.Nonce{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		deadline := nonce.CreatedAt.Add(ttl)
		nonce.ExpiresAt = &deadline
	}

	payload, err := json.Marshal(nonce)
	if err != nil {
		return domain.Nonce{}, err
	}

	// redis expires the key at the nonce deadline; ttl <= 0 means no expiry
	if ttl < 0 {
		ttl = 0
	}
	err = r.rdb.Set(ctx, nonceKey(nonce.Token), payload, ttl).Err()
	if err != nil {
		return domain.Nonce{}, err
	}

	return nonce, nil
}

func (r *NonceRepository) Validate(ctx context.Context, token string) (domain.Nonce, error) {

	raw, err := r.rdb.Get(ctx, nonceKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Nonce{}, domain.NotFoundError{Resource: "nonce"}
		}
		return domain.Nonce{}, err
	}

	var nonce domain.Nonce
	if err := json.Unmarshal(raw, &nonce); err != nil {
		return domain.Nonce{}, err
	}
	if nonce.Expired(time.Now()) {
		return domain.Nonce{}, domain.NotFoundError{Resource: "nonce"}
	}

	return nonce, nil
}

// Use consumes the nonce with a single GETDEL, so exactly one caller ever
// observes true for a given token.
func (r *NonceRepository) Use(ctx context.Context, token string) (bool, error) {

	raw, err := r.rdb.GetDel(ctx, nonceKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	var nonce domain.Nonce
	if err := json.Unmarshal(raw, &nonce); err != nil {
		return false, err
	}
	if nonce.Expired(time.Now()) {
		return false, nil
	}

	return true, nil
}
