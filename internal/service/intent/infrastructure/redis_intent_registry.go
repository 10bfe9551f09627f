// internal/service/intent/infrastructure/redis_intent_registry.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"tiffin/internal/pkg/redis"
	"tiffin/internal/service/intent/domain"
	orderport "tiffin/internal/service/order/port"
)

const (
	intentKeyPrefix  = "payment_intent:"
	claimScriptName  = "intent_claim"
	claimedRetention = 24 * time.Hour
)

// claimScript 原子地认领意图。
// KEYS[1]: 意图 key; ARGV[1]: 调用方 customer id; ARGV[2]: 认领后保留秒数
// 返回 {code, amount, currency}，code: 0 不存在 / 1 本次认领 / 2 此前已认领 / 3 不属于调用方
const claimScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return {0, 0, ''}
end
local owner = redis.call('HGET', KEYS[1], 'customer_id')
if owner ~= ARGV[1] then
    return {3, 0, ''}
end
local amount = tonumber(redis.call('HGET', KEYS[1], 'amount'))
local currency = redis.call('HGET', KEYS[1], 'currency')
if redis.call('HGET', KEYS[1], 'state') == 'claimed' then
    return {2, amount, currency}
end
redis.call('HSET', KEYS[1], 'state', 'claimed')
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return {1, amount, currency}
`

// RedisIntentRegistry 在 Redis 中登记一次性支付意图。
// 意图服务写入，订单服务认领，认领动作由 Lua 脚本保证原子性。
type RedisIntentRegistry struct {
	client *redis.Client
}

func NewRedisIntentRegistry(client *redis.Client) (*RedisIntentRegistry, error) {
	if err := client.LoadScriptFromContent(claimScriptName, claimScript); err != nil {
		return nil, fmt.Errorf("failed to load intent claim script: %w", err)
	}
	return &RedisIntentRegistry{client: client}, nil
}

func intentKey(providerOrderID string) string {
	return intentKeyPrefix + providerOrderID
}

func (r *RedisIntentRegistry) Put(ctx context.Context, intent *domain.PaymentIntent, ttl time.Duration) error {
	key := intentKey(intent.ProviderOrderID)
	pipe := r.client.GetClient().TxPipeline()
	pipe.HSet(ctx, key,
		"amount", intent.Amount,
		"currency", intent.Currency,
		"customer_id", intent.CustomerID,
		"receipt", intent.Receipt,
		"state", "open",
		"created_at", intent.CreatedAt.Unix(),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store payment intent %s: %w", intent.ProviderOrderID, err)
	}
	return nil
}

// Claim 实现订单服务的 IntentClaimer 端口。
func (r *RedisIntentRegistry) Claim(ctx context.Context, providerOrderID, customerID string) (*orderport.ClaimedIntent, error) {
	res, err := r.client.RunScript(ctx, claimScriptName, []string{intentKey(providerOrderID)},
		customerID, int64(claimedRetention/time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to run intent claim script: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("unexpected claim script result: %v", res)
	}
	code, _ := values[0].(int64)
	switch code {
	case 0:
		return nil, orderport.ErrIntentNotFound
	case 3:
		return nil, orderport.ErrIntentNotOwned
	}
	amount, _ := values[1].(int64)
	currency, _ := values[2].(string)
	return &orderport.ClaimedIntent{
		ProviderOrderID: providerOrderID,
		AmountMinor:     amount,
		Currency:        currency,
		FirstClaim:      code == 1,
	}, nil
}
