package redis

const (
	// deleteRecordScript removes one daily record and its index entries
	deleteRecordScript = `
local record_key = KEYS[1]     -- attendance:record:{userID}:{day}
local day_key = KEYS[2]        -- attendance:day:{day}
local open_key = KEYS[3]       -- attendance:open:{day}
local user_days = KEYS[4]      -- attendance:user:{userID}:days
local days_key = KEYS[5]       -- attendance:days

local user_id = ARGV[1]
local day = ARGV[2]

local deleted = redis.call('DEL', record_key)
if deleted == 0 then
  return 0
end

redis.call('SREM', day_key, user_id)
redis.call('SREM', open_key, user_id)
redis.call('ZREM', user_days, day)

-- Drop the day from the global index once nobody has a record for it
if redis.call('SCARD', day_key) == 0 then
  redis.call('ZREM', days_key, day)
end

return deleted
`

	// purgeUserScript removes every daily record of a user and returns the count
	purgeUserScript = `
local user_days = KEYS[1]      -- attendance:user:{userID}:days
local days_key = KEYS[2]       -- attendance:days

local prefix = ARGV[1]
local user_id = ARGV[2]

local days = redis.call('ZRANGE', user_days, 0, -1)
local count = 0

for _, day in ipairs(days) do
  local day_key = prefix .. 'day:' .. day
  count = count + redis.call('DEL', prefix .. 'record:' .. user_id .. ':' .. day)
  redis.call('SREM', day_key, user_id)
  redis.call('SREM', prefix .. 'open:' .. day, user_id)
  if redis.call('SCARD', day_key) == 0 then
    redis.call('ZREM', days_key, day)
  end
end

redis.call('DEL', user_days)

return count
`
)
