package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// RedisNonceStore keeps one pending setup per session. Consume is GETDEL so
// a nonce can be used once.
type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Issue(ctx context.Context, sessionID string, session models.SetupSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, nonceKey(sessionID), data, ttl).Err()
}

func (s *RedisNonceStore) Consume(ctx context.Context, sessionID string) (*models.SetupSession, error) {
	data, err := s.client.GetDel(ctx, nonceKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.SetupSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode setup session: %w", err)
	}
	return &session, nil
}

func nonceKey(sessionID string) string {
	return fmt.Sprintf("btcpay_setup_nonce:%s", sessionID)
}

// RedisRefundGuard holds a marker per (receipt, amount) so the same refund
// cannot be requested twice.
type RedisRefundGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRefundGuard(client *redis.Client, ttl time.Duration) *RedisRefundGuard {
	return &RedisRefundGuard{client: client, ttl: ttl}
}

func (g *RedisRefundGuard) Acquire(ctx context.Context, receiptID string, amount decimal.Decimal) (bool, error) {
	return g.client.SetNX(ctx, refundKey(receiptID, amount), "1", g.ttl).Result()
}

func (g *RedisRefundGuard) Release(ctx context.Context, receiptID string, amount decimal.Decimal) error {
	return g.client.Del(ctx, refundKey(receiptID, amount)).Err()
}

func refundKey(receiptID string, amount decimal.Decimal) string {
	return fmt.Sprintf("btcpay_refund_lock:%s:%s", receiptID, amount.String())
}
