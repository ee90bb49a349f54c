// Package redis implements queue.Queue on Redis sorted sets.
//
// Two keys hold the queue: {prefix}pending scored by due time and
// {prefix}processing scored by claim deadline, both in epoch milliseconds.
// Every operation that reads one set and writes the other runs as a Lua
// script (EVALSHA with EVAL fallback), so claims are atomic across any
// number of worker processes.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	q := redis.New(client)
//	if err := q.Ping(ctx); err != nil { ... }
package redis
