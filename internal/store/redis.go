package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shareonair/internal/share"
)

var _ share.Store = (*RedisStore)(nil)

// Records outlive their deadline by this long so lookups can still report
// them as expired rather than unknown. The reaper normally deletes them first.
const expiredRetention = 24 * time.Hour

// RedisOptions configures the client behind a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, "shareonair:" when empty
}

// NewRedisClient connects and pings, closing the client again on failure.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, share.Unavailable("redis ping", err)
	}
	return client, nil
}

// RedisStore keeps each share in a hash. A SET NX on the code key is the
// uniqueness gate and a sorted set scored by expiry drives sweeps. The Lua
// scripts build keys from the prefix, so a single Redis node is assumed.
//
//	{prefix}share:{id}     hash with the share fields
//	{prefix}code:{CODE}    id of the share holding the code
//	{prefix}blob:{ref}     id of the share referencing the blob
//	{prefix}expiry         sorted set of ids scored by expiry (unix ms)
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "shareonair:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) shareKey(id string) string  { return r.prefix + "share:" + id }
func (r *RedisStore) codeKey(code string) string { return r.prefix + "code:" + code }
func (r *RedisStore) blobKey(ref string) string  { return r.prefix + "blob:" + ref }
func (r *RedisStore) expiryKey() string          { return r.prefix + "expiry" }

// KEYS: code, share, expiry, blob. ARGV: id, ttl ms, expiry score, blob ref,
// then the hash field/value pairs.
var insertScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 5))
redis.call('PEXPIRE', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
if ARGV[4] ~= '' then
	redis.call('SET', KEYS[4], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// KEYS: share. Returns -1 when missing, -2 at quota, else the updated hash.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local views = tonumber(redis.call('HGET', KEYS[1], 'views'))
local max = tonumber(redis.call('HGET', KEYS[1], 'max_views'))
if views >= max then
	return -2
end
redis.call('HINCRBY', KEYS[1], 'views', 1)
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: share, expiry. ARGV: id, code key prefix, blob key prefix.
// Returns the deleted hash, empty when nothing was stored.
var deleteScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if #fields == 0 then
	return fields
end
redis.call('DEL', KEYS[1])
local rec = {}
for i = 1, #fields, 2 do
	rec[fields[i]] = fields[i + 1]
end
local codeKey = ARGV[2] .. rec['code']
if redis.call('GET', codeKey) == ARGV[1] then
	redis.call('DEL', codeKey)
end
if rec['blob_ref'] and rec['blob_ref'] ~= '' then
	local blobKey = ARGV[3] .. rec['blob_ref']
	if redis.call('GET', blobKey) == ARGV[1] then
		redis.call('DEL', blobKey)
	end
end
return fields
`)

func (r *RedisStore) Insert(ctx context.Context, sh *share.Share) error {
	cp := *sh
	cp.Code = share.NormalizeCode(sh.Code)
	id := cp.ID.String()

	ttl := time.Until(cp.ExpiresAt) + expiredRetention
	if ttl < expiredRetention {
		ttl = expiredRetention
	}

	args := []any{id, ttl.Milliseconds(), cp.ExpiresAt.UnixMilli(), cp.BlobRef}
	args = append(args, encodeShare(&cp)...)

	keys := []string{r.codeKey(cp.Code), r.shareKey(id), r.expiryKey(), r.blobKey(cp.BlobRef)}
	ok, err := insertScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return share.Unavailable("insert share", err)
	}
	if ok == 0 {
		return share.ErrDuplicateCode
	}
	return nil
}

func (r *RedisStore) FindByCode(ctx context.Context, code string) (*share.Share, error) {
	id, err := r.client.Get(ctx, r.codeKey(share.NormalizeCode(code))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, share.ErrNotFound
	}
	if err != nil {
		return nil, share.Unavailable("find share", err)
	}

	fields, err := r.client.HGetAll(ctx, r.shareKey(id)).Result()
	if err != nil {
		return nil, share.Unavailable("find share", err)
	}
	if len(fields) == 0 {
		return nil, share.ErrNotFound
	}
	return decodeShare(fields)
}

func (r *RedisStore) IncrementViews(ctx context.Context, id uuid.UUID) (*share.Share, error) {
	res, err := incrementScript.Run(ctx, r.client, []string{r.shareKey(id.String())}).Result()
	if err != nil {
		return nil, share.Unavailable("increment views", err)
	}
	switch v := res.(type) {
	case int64:
		if v == -2 {
			return nil, share.ErrQuotaExhausted
		}
		return nil, share.ErrNotFound
	case []any:
		return decodeShare(pairs(v))
	default:
		return nil, share.Unavailable("increment views", fmt.Errorf("unexpected script reply %T", res))
	}
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.delete(ctx, id.String())
	return err
}

func (r *RedisStore) delete(ctx context.Context, id string) (*share.Share, error) {
	keys := []string{r.shareKey(id), r.expiryKey()}
	res, err := deleteScript.Run(ctx, r.client, keys, id, r.codeKey(""), r.blobKey("")).Slice()
	if err != nil {
		return nil, share.Unavailable("delete share", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return decodeShare(pairs(res))
}

func (r *RedisStore) DeleteExpiredBefore(ctx context.Context, t time.Time) ([]share.Share, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, share.Unavailable("delete expired", err)
	}

	var removed []share.Share
	for _, id := range ids {
		sh, err := r.delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if sh != nil {
			removed = append(removed, *sh)
		}
	}
	return removed, nil
}

func (r *RedisStore) HasBlobRef(ctx context.Context, ref string) (bool, error) {
	n, err := r.client.Exists(ctx, r.blobKey(ref)).Result()
	if err != nil {
		return false, share.Unavailable("lookup blob ref", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Stats(ctx context.Context, now time.Time) (share.Stats, error) {
	var st share.Stats
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return st, share.Unavailable("aggregate stats", err)
	}
	if len(ids) == 0 {
		return st, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.shareKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return share.Stats{}, share.Unavailable("aggregate stats", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		sh, err := decodeShare(fields)
		if err != nil {
			return share.Stats{}, err
		}
		st.Add(sh)
	}
	return st, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeShare(sh *share.Share) []any {
	return []any{
		"id", sh.ID.String(),
		"code", sh.Code,
		"kind", string(sh.Kind),
		"content", sh.Content,
		"blob_ref", sh.BlobRef,
		"file_name", sh.FileName,
		"file_size", strconv.FormatInt(sh.FileSize, 10),
		"views", strconv.Itoa(sh.Views),
		"max_views", strconv.Itoa(sh.MaxViews),
		"created_at", sh.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", sh.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeShare(f map[string]string) (*share.Share, error) {
	var (
		sh  share.Share
		err error
	)
	fail := func(field string, err error) (*share.Share, error) {
		return nil, share.Unavailable("decode share", fmt.Errorf("field %s: %w", field, err))
	}

	if sh.ID, err = uuid.Parse(f["id"]); err != nil {
		return fail("id", err)
	}
	sh.Code = f["code"]
	sh.Kind = share.Kind(f["kind"])
	sh.Content = f["content"]
	sh.BlobRef = f["blob_ref"]
	sh.FileName = f["file_name"]
	if sh.FileSize, err = strconv.ParseInt(f["file_size"], 10, 64); err != nil {
		return fail("file_size", err)
	}
	if sh.Views, err = strconv.Atoi(f["views"]); err != nil {
		return fail("views", err)
	}
	if sh.MaxViews, err = strconv.Atoi(f["max_views"]); err != nil {
		return fail("max_views", err)
	}
	if sh.CreatedAt, err = time.Parse(time.RFC3339Nano, f["created_at"]); err != nil {
		return fail("created_at", err)
	}
	if sh.ExpiresAt, err = time.Parse(time.RFC3339Nano, f["expires_at"]); err != nil {
		return fail("expires_at", err)
	}
	return &sh, nil
}

// pairs turns a flat HGETALL reply from a script into a map.
func pairs(vals []any) map[string]string {
	m := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		k, _ := vals[i].(string)
		v, _ := vals[i+1].(string)
		m[k] = v
	}
	return m
}
