package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// RedisBackend is a Registry backend for multi-process deployments:
// providers for a key are stored in a Redis hash (field = URL.Key(), value
// = URL string), versioned by a companion counter key, and change
// notifications are delivered over a Pub/Sub channel so every subscribed
// process replays the hash on each bump.
//
// Construction is grounded on the teacher's pkg/cache.NewRedisCache
// (redis.NewClient + an eager Ping to fail fast on misconfiguration).
type RedisBackend struct {
	client *redis.Client
}

// RedisOptions mirrors the teacher's cache.Options Redis fields.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisBackend dials addr and pings it before returning, matching the
// teacher's fail-fast-on-construction pattern.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, joyerr.Wrap(joyerr.CodeInit, "redis registry backend ping failed", err)
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) hashKey(key Key) string    { return "joyrpc:providers:" + keyString(key) }
func (b *RedisBackend) versionKey(key Key) string { return "joyrpc:version:" + keyString(key) }
func (b *RedisBackend) channelKey(key Key) string { return "joyrpc:notify:" + keyString(key) }
func (b *RedisBackend) configKey(key Key) string  { return "joyrpc:config:" + keyString(key) }
func (b *RedisBackend) configVerKey(key Key) string {
	return "joyrpc:config-version:" + keyString(key)
}
func (b *RedisBackend) configChannelKey(key Key) string {
	return "joyrpc:config-notify:" + keyString(key)
}

func keyString(k Key) string { return k.Interface + "/" + k.Alias }

func (b *RedisBackend) currentSnapshot(ctx context.Context, key Key) (Snapshot, error) {
	vals, err := b.client.HGetAll(ctx, b.hashKey(key)).Result()
	if err != nil {
		return Snapshot{}, joyerr.Wrap(joyerr.CodeTransport, "redis registry read failed", err)
	}
	version, _ := b.client.Get(ctx, b.versionKey(key)).Uint64()

	providers := make([]*joyurl.URL, 0, len(vals))
	for _, raw := range vals {
		u, err := parseURL(raw)
		if err != nil {
			logger.WithService("registry-redis").Warn("dropping malformed provider entry", "raw", raw, "error", err)
			continue
		}
		providers = append(providers, u)
	}
	return Snapshot{Version: version, Providers: providers}, nil
}

// SubscribeCluster replays the current snapshot, then re-reads and
// redelivers the full hash every time a notification arrives on the key's
// Pub/Sub channel, applying the same version-gate discipline as
// MemoryBackend so a subscriber never regresses to an older snapshot.
func (b *RedisBackend) SubscribeCluster(ctx context.Context, key Key, fn ClusterListener) (Handle, error) {
	snap, err := b.currentSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	gate := &versionGate{}
	gate.apply(snap.Version)
	fn(snap)

	sub := b.client.Subscribe(ctx, b.channelKey(key))
	done := make(chan struct{})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				latest, err := b.currentSnapshot(ctx, key)
				if err != nil {
					logger.WithService("registry-redis").Warn("resnapshot after notify failed", "error", err)
					continue
				}
				if gate.apply(latest.Version) {
					fn(latest)
				}
			case <-done:
				return
			}
		}
	}()

	return handleFunc(func() {
		close(done)
		sub.Close()
	}), nil
}

// SubscribeConfigure mirrors SubscribeCluster for the config overlay.
func (b *RedisBackend) SubscribeConfigure(ctx context.Context, key Key, fn ConfigListener) (Handle, error) {
	vals, err := b.client.HGetAll(ctx, b.configKey(key)).Result()
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeTransport, "redis registry config read failed", err)
	}
	version, _ := b.client.Get(ctx, b.configVerKey(key)).Uint64()

	gate := &versionGate{}
	gate.apply(version)
	fn(ConfigSnapshot{Version: version, Params: vals})

	sub := b.client.Subscribe(ctx, b.configChannelKey(key))
	done := make(chan struct{})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				vals, err := b.client.HGetAll(ctx, b.configKey(key)).Result()
				if err != nil {
					continue
				}
				version, _ := b.client.Get(ctx, b.configVerKey(key)).Uint64()
				if gate.apply(version) {
					fn(ConfigSnapshot{Version: version, Params: vals})
				}
			case <-done:
				return
			}
		}
	}()

	return handleFunc(func() {
		close(done)
		sub.Close()
	}), nil
}

// Register writes node into the key's provider hash, bumps the version
// counter, and publishes a notification.
func (b *RedisBackend) Register(ctx context.Context, key Key, node *joyurl.URL) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.hashKey(key), node.Key(), node.String())
	incr := pipe.Incr(ctx, b.versionKey(key))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "redis registry register failed", err)
	}
	return b.client.Publish(ctx, b.channelKey(key), strconv.FormatInt(incr.Val(), 10)).Err()
}

// Deregister removes node from the key's provider hash (idempotent: HDel
// on an absent field is a no-op) and publishes a notification.
func (b *RedisBackend) Deregister(ctx context.Context, key Key, node *joyurl.URL) error {
	pipe := b.client.TxPipeline()
	pipe.HDel(ctx, b.hashKey(key), node.Key())
	incr := pipe.Incr(ctx, b.versionKey(key))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "redis registry deregister failed", err)
	}
	return b.client.Publish(ctx, b.channelKey(key), strconv.FormatInt(incr.Val(), 10)).Err()
}

// Close releases the underlying Redis client.
func (b *RedisBackend) Close() error { return b.client.Close() }

// parseURL reconstructs a *joyurl.URL from the Key()/String() form Register
// stores it as: "scheme://host:port/interface&k=v&k2=v2...".
func parseURL(raw string) (*joyurl.URL, error) {
	schemeSplit := strings.SplitN(raw, "://", 2)
	if len(schemeSplit) != 2 {
		return nil, fmt.Errorf("malformed url %q", raw)
	}
	scheme := schemeSplit[0]
	rest := schemeSplit[1]

	pathSplit := strings.SplitN(rest, "/", 2)
	hostport := pathSplit[0]
	tail := ""
	if len(pathSplit) == 2 {
		tail = pathSplit[1]
	}

	segments := strings.Split(tail, "&")
	iface := segments[0]
	params := map[string]string{}
	for _, kv := range segments[1:] {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			params[parts[0]] = parts[1]
		}
	}

	hostSplit := strings.SplitN(hostport, ":", 2)
	host := hostSplit[0]
	port := 0
	if len(hostSplit) == 2 {
		port, _ = strconv.Atoi(hostSplit[1])
	}

	return joyurl.New(scheme, host, port, iface, params), nil
}
