// Package redis provides a Redis-backed session store.
//
// Records live under handle keys with native TTL matching their expiry, so
// expired sessions vanish without a sweep. A token-hash key resolves access
// tokens to handles, and a per-user set supports revoke-all and active
// session enumeration; stale set members are pruned lazily and by the
// janitor's DeleteExpired pass.
//
//	client, err := redis.Connect(ctx, redis.ConnectConfig{
//		ConnectionURL: "redis://localhost:6379/0",
//	})
//	// handle err
//	store := redis.New(client)
package redis
