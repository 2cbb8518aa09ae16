package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrRefreshNotFound = errors.New("refresh token not found or expired")

// RefreshStore keeps the allow-list of live refresh tokens in Redis. A token is
// an opaque random value; its Redis entry maps it back to the user id and
// expires with the configured TTL. Rotation deletes the old entry before the
// new one is minted, so a token is single-use.
type RefreshStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRefreshStore(client *redis.Client, ttl time.Duration) *RefreshStore {
	return &RefreshStore{client: client, ttl: ttl}
}

func refreshKey(token string) string {
	return "refresh:" + token
}

func (s *RefreshStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	err := s.client.Set(ctx, refreshKey(token), strconv.FormatInt(userID, 10), s.ttl).Err()
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// Redeem consumes a refresh token, returning the user it was issued to.
func (s *RefreshStore) Redeem(ctx context.Context, token string) (int64, error) {
	val, err := s.client.GetDel(ctx, refreshKey(token)).Result()
	if err == redis.Nil {
		return 0, ErrRefreshNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redeem refresh token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse refresh token subject: %w", err)
	}
	return userID, nil
}

func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, refreshKey(token)).Err()
}

