package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adcal/slotmarket/internal/domain"
)

const slotTTL = 5 * time.Minute

// SlotCache implements domain.SlotCache using Redis hashes with
// JSON-serialized slot data and a secondary owner index.
//
// Key schema:
//
//	slot:{day}          - hash with field "data" containing JSON
//	slot:owner:{day}    - string value of the owner address
type SlotCache struct {
	rdb *redis.Client
}

// NewSlotCache creates a SlotCache backed by the given Client.
func NewSlotCache(c *Client) *SlotCache {
	return &SlotCache{rdb: c.Underlying()}
}

func slotKey(day int) string      { return "slot:" + strconv.Itoa(day) }
func slotOwnerKey(day int) string { return "slot:owner:" + strconv.Itoa(day) }

// Set stores a slot in the cache with a 5-minute TTL and records the owner
// in the owner index alongside it.
func (sc *SlotCache) Set(ctx context.Context, slot domain.Slot) error {
	data, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("redis: marshal slot %d: %w", slot.Day, err)
	}

	key := slotKey(slot.Day)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, slotTTL)
	pipe.Set(ctx, slotOwnerKey(slot.Day), slot.Owner.Hex(), slotTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set slot %d: %w", slot.Day, err)
	}
	return nil
}

// Get retrieves a slot by its day index from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SlotCache) Get(ctx context.Context, day int) (domain.Slot, error) {
	data, err := sc.rdb.HGet(ctx, slotKey(day), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Slot{}, domain.ErrNotFound
		}
		return domain.Slot{}, fmt.Errorf("redis: get slot %d: %w", day, err)
	}

	var slot domain.Slot
	if err := json.Unmarshal(data, &slot); err != nil {
		return domain.Slot{}, fmt.Errorf("redis: unmarshal slot %d: %w", day, err)
	}
	return slot, nil
}

// Invalidate removes a slot and its owner index entry from the cache.
func (sc *SlotCache) Invalidate(ctx context.Context, day int) error {
	pipe := sc.rdb.TxPipeline()
	pipe.Del(ctx, slotKey(day))
	pipe.Del(ctx, slotOwnerKey(day))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate slot %d: %w", day, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SlotCache = (*SlotCache)(nil)
