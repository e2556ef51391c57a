package utils

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCacheTTL = time.Minute

// memCache backs the helpers below whenever Redis is not configured.
var memCache = gocache.New(defaultCacheTTL, 10*time.Minute)

// memMu serialises add-then-increment on generation counters.
var memMu sync.Mutex

// CacheGetBytes returns cached bytes for a key.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		v, ok := memCache.Get(key)
		if !ok {
			return nil, false
		}
		b, ok := v.([]byte)
		return b, ok
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheSetBytes stores bytes under key; ttl <= 0 uses the default.
func CacheSetBytes(key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	rc := GetRedis()
	if rc == nil {
		memCache.Set(key, b, ttl)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// CacheSetJSON marshals v and stores JSON bytes.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	CacheSetBytes(key, b, ttl)
}

// CacheDelete removes a single key.
func CacheDelete(key string) {
	rc := GetRedis()
	if rc == nil {
		memCache.Delete(key)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Del(ctx, key).Err(); err != nil {
		Sugar.Warnf("cache delete failed key=%s err=%v", key, err)
	}
}

// historyGenKey holds the per-user counter that versions the history cache key.
func historyGenKey(userID uint) string {
	return "cache:predictions:gen:" + strconv.FormatUint(uint64(userID), 10)
}

func historyGeneration(userID uint) int64 {
	key := historyGenKey(userID)
	rc := GetRedis()
	if rc == nil {
		v, ok := memCache.Get(key)
		if !ok {
			return 0
		}
		n, _ := v.(int64)
		return n
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := rc.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return n
}

// HistoryCacheKey is the cache key of a user's serialised prediction history.
// The key embeds a generation, so a list computed before InvalidateHistory
// can never be served after it.
func HistoryCacheKey(userID uint) string {
	return "cache:predictions:user:" + strconv.FormatUint(uint64(userID), 10) +
		":" + strconv.FormatInt(historyGeneration(userID), 10)
}

// InvalidateHistory moves the user's history to a fresh cache key and drops the old entry.
func InvalidateHistory(userID uint) {
	old := HistoryCacheKey(userID)
	key := historyGenKey(userID)
	rc := GetRedis()
	if rc == nil {
		memMu.Lock()
		_ = memCache.Add(key, int64(0), gocache.NoExpiration)
		_, err := memCache.IncrementInt64(key, 1)
		memMu.Unlock()
		if err != nil {
			Sugar.Warnw("history generation bump failed", "user_id", userID, "error", err)
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rc.Incr(ctx, key).Err()
		cancel()
		if err != nil {
			Sugar.Warnw("history generation bump failed", "user_id", userID, "error", err)
		}
	}
	CacheDelete(old)
}
