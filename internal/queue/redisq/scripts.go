package redisq

import "github.com/redis/go-redis/v9"

// KEYS: job hash, queued list, index zset, seq counter. ARGV: id, then field/value pairs.
var enqueueScript = redis.NewScript(`
local seq = tostring(redis.call('INCR', KEYS[4]))
redis.call('HSET', KEYS[1], 'seq', seq, unpack(ARGV, 2))
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], seq, ARGV[1])
return seq
`)

// KEYS: queued list, active zset. ARGV: key prefix, now, lease score.
var claimScript = redis.NewScript(`
while true do
  local id = redis.call('LPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. 'job:' .. id
  if redis.call('HGET', key, 'state') == 'queued' then
    redis.call('HINCRBY', key, 'attempt', 1)
    redis.call('HSET', key, 'state', 'active', 'started_at', ARGV[2], 'heartbeat_at', ARGV[2], 'updated_at', ARGV[2])
    redis.call('ZADD', KEYS[2], ARGV[3], id)
    return redis.call('HGETALL', key)
  end
end
`)

// KEYS: job hash, active zset. ARGV: id, attempt, state, result_ref, error, now.
var finishScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'state', 'attempt')
if cur[1] ~= 'active' or cur[2] ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'result_ref', ARGV[4], 'error', ARGV[5],
  'finished_at', ARGV[6], 'updated_at', ARGV[6], 'heartbeat_at', '')
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// KEYS: job hash, active zset. ARGV: id, attempt, now, lease score.
var heartbeatScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'state', 'attempt')
if cur[1] ~= 'active' or cur[2] ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'heartbeat_at', ARGV[3], 'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// KEYS: active zset, queued list. ARGV: key prefix, cutoff score, now.
// Reclaimed ids go back to the head of the queue in their original lease order.
var reclaimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
local n = 0
for i = #ids, 1, -1 do
  local id = ids[i]
  local key = ARGV[1] .. 'job:' .. id
  redis.call('ZREM', KEYS[1], id)
  if redis.call('HGET', key, 'state') == 'active' then
    redis.call('HSET', key, 'state', 'queued', 'started_at', '', 'heartbeat_at', '', 'updated_at', ARGV[3])
    redis.call('LPUSH', KEYS[2], id)
    n = n + 1
  end
end
return n
`)

// KEYS: job hash, queued list, index zset. ARGV: id.
var removeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 0
end
if state == 'active' then
  return -1
end
redis.call('DEL', KEYS[1])
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return 1
`)

// KEYS: index zset. ARGV: key prefix.
var clearTerminalScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. 'job:' .. id
  local state = redis.call('HGET', key, 'state')
  if state == 'completed' or state == 'failed' then
    redis.call('DEL', key)
    redis.call('ZREM', KEYS[1], id)
    n = n + 1
  end
end
return n
`)
