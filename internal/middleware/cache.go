package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/config"
)

// captureWriter copies the response body (up to limit bytes) while
// forwarding it to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ResponseCache stores successful GET responses in Redis and drops them
// when a booking write touches the cached path.  Each cached key is also
// recorded in a per-path index set so invalidation covers every query
// variant of the path.
//
// Every path also has a generation counter.  A miss records the generation
// before running the handler and the fill only lands if it is unchanged, so
// a response computed before a write can not be stored after that write's
// invalidation.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log logrus.FieldLogger
}

// NewResponseCache returns a cache that is a no-op when disabled or when rdb
// is nil.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log logrus.FieldLogger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *ResponseCache) enabled() bool {
	return rc != nil && rc.cfg.Enabled && rc.rdb != nil
}

// cacheKey derives the entry key from the request path and, for the
// "path_query" strategy, the raw query.
func cacheKey(cfg config.CacheConfig, path, rawQuery string) string {
	tail := "path:" + path
	if strings.ToLower(cfg.KeyStrategy) != "path" {
		tail += ":q:" + rawQuery
	}
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

func indexKey(cfg config.CacheConfig, path string) string {
	return cfg.Prefix + ":idx:" + path
}

func generationKey(cfg config.CacheConfig, path string) string {
	return cfg.Prefix + ":gen:" + path
}

// generationTTL keeps counters well past the lifetime of any entry filled
// under them.
const generationTTL = 24 * time.Hour

// fillIfCurrent stores an entry only while the path generation still equals
// the one observed before the handler ran.
// KEYS[1]=generation KEYS[2]=entry KEYS[3]=index
// ARGV[1]=expected generation ARGV[2]=payload ARGV[3]=ttl ms
var fillIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('SADD', KEYS[3], KEYS[2])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return 1
`)

// generation reads the current generation of path; a missing counter is "0".
func (rc *ResponseCache) generation(ctx context.Context, path string) (string, error) {
	gen, err := rc.rdb.Get(ctx, generationKey(rc.cfg, path)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// Middleware serves cached responses and records fresh 200 responses.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !rc.cfg.Methods[strings.ToUpper(req.Method)] {
				return next(c)
			}
			ctx := req.Context()
			key := cacheKey(rc.cfg, req.URL.Path, req.URL.RawQuery)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) || strings.EqualFold(k, HeaderRequestID) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(status, hdr.Get(echo.HeaderContentType), body)
				}
			}

			// Without a generation the fill can not be checked, so skip it.
			gen, genErr := rc.generation(ctx, req.URL.Path)

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if genErr != nil || cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			// The request context may already be done once the body is sent.
			sctx := context.WithoutCancel(ctx)
			path := req.URL.Path
			stored, err := fillIfCurrent.Run(sctx, rc.rdb,
				[]string{generationKey(rc.cfg, path), key, indexKey(rc.cfg, path)},
				gen, payload, rc.cfg.TTL.Milliseconds(),
			).Int64()
			if err == nil && stored == 0 {
				Logger(c, rc.log).WithField("path", path).Debug("cache fill skipped, path invalidated during request")
			}
			if err != nil {
				Logger(c, rc.log).WithError(err).Warn("cache store failed")
			}
			return nil
		}
	}
}

// Invalidate bumps the generation of the given paths and removes every
// cached response recorded for them.  Failures are logged; stale entries
// expire with their TTL.
func (rc *ResponseCache) Invalidate(ctx context.Context, paths ...string) {
	if !rc.enabled() {
		return
	}
	for _, path := range paths {
		_, err := rc.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.Incr(ctx, generationKey(rc.cfg, path))
			p.Expire(ctx, generationKey(rc.cfg, path), generationTTL)
			return nil
		})
		if err != nil {
			rc.log.WithError(err).WithField("path", path).Warn("cache generation bump failed")
		}
		idx := indexKey(rc.cfg, path)
		keys, err := rc.rdb.SMembers(ctx, idx).Result()
		if err != nil {
			rc.log.WithError(err).WithField("path", path).Warn("cache invalidation failed")
			continue
		}
		if err := rc.rdb.Del(ctx, append(keys, idx)...).Err(); err != nil {
			rc.log.WithError(err).WithField("path", path).Warn("cache invalidation failed")
		}
	}
}
