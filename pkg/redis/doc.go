// Package redis connects sessiond to the Redis instance behind
// session.RedisStore.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := session.NewRedisStore(client, session.WithKeyPrefix(cfg.KeyPrefix))
//	ready := redis.Healthcheck(client)
//
// The returned client is a single-node client. The session store relies on
// multi-key Lua scripts, so a cluster deployment needs all keys of a user in
// one hash slot, which the default key layout does not provide.
package redis
