package redis

import goredis "github.com/redis/go-redis/v9"

// All scripts take KEYS = {pending, processing}.

// ARGV = {now_ms, timeout_ms}. Returns the claimed id or nil.
var claimScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
  return false
end
local id = due[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], tonumber(ARGV[1]) + tonumber(ARGV[2]), id)
return id
`)

// ARGV = {due_ms, id}. Upsert into pending unless processing.
var enqueueScript = goredis.NewScript(`
if redis.call('ZSCORE', KEYS[2], ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// ARGV = {due_ms, id}. Insert into pending only when in neither set.
var offerScript = goredis.NewScript(`
if redis.call('ZSCORE', KEYS[2], ARGV[2]) then
  return 0
end
return redis.call('ZADD', KEYS[1], 'NX', ARGV[1], ARGV[2])
`)

// ARGV = {now_ms, grace_ms}. Returns the reclaimed ids.
var reclaimScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
local due = tonumber(ARGV[1]) + tonumber(ARGV[2])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], due, id)
end
return expired
`)
