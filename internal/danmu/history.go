package danmu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"firefly-live/internal/bloom"
	"firefly-live/internal/cache"
)

const (
	danmuKeyPrefix = "dm-video-"
	nullKeyPrefix  = "dm-null-"
	bloomKey       = "bf:video:exists"

	positiveTTL = 10 * time.Minute
	negativeTTL = 2 * time.Minute
)

// DurableStore is the authoritative comment store. Reads fall through to it
// on cache miss; writes reach it on a separate async path.
type DurableStore interface {
	SaveDanmu(ctx context.Context, d *Danmu) error
	GetDanmus(ctx context.Context, videoID int64, from, to time.Time) ([]Danmu, error)
}

// History serves comment-history queries cache-aside: negative marker,
// then bloom filter, then positive cache, then the durable store. The
// layering exists to keep cold keys and repeated misses off the database.
type History struct {
	store   cache.Store
	bloom   *bloom.Filter
	durable DurableStore
	log     *logrus.Entry
}

func NewHistory(store cache.Store, filter *bloom.Filter, durable DurableStore, log *logrus.Logger) *History {
	return &History{
		store:   store,
		bloom:   filter,
		durable: durable,
		log:     log.WithField("component", "danmu-history"),
	}
}

// Query returns the comments for a video, filtered to from < t < to when
// both bounds are set (exclusive on both ends). Cache failures degrade to
// a miss; a durable-store failure on the fallback path is returned.
func (h *History) Query(ctx context.Context, videoID int64, from, to time.Time) ([]Danmu, error) {
	key := danmuKeyPrefix + strconv.FormatInt(videoID, 10)
	nullKey := nullKeyPrefix + strconv.FormatInt(videoID, 10)

	// Confirmed-absent marker: short-circuit repeated misses.
	if _, err := h.store.Get(ctx, nullKey); err == nil {
		return []Danmu{}, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		h.log.WithError(err).Warn("negative-cache read failed, continuing")
	}

	// Bloom says never seen: record a short negative marker and stop
	// before the durable store is ever consulted.
	seen, err := h.bloom.MightContain(ctx, bloomKey, strconv.FormatInt(videoID, 10))
	if err != nil {
		h.log.WithError(err).Warn("bloom check failed, assuming present")
		seen = true
	}
	if !seen {
		if err := h.store.Set(ctx, nullKey, "1", negativeTTL); err != nil {
			h.log.WithError(err).Warn("negative-cache write failed")
		}
		return []Danmu{}, nil
	}

	raw, err := h.store.Get(ctx, key)
	if err == nil {
		list, decodeErr := decodeList(raw)
		if decodeErr == nil {
			return filterRange(list, from, to), nil
		}
		h.log.WithError(decodeErr).WithField("video", videoID).Warn("corrupt cache entry, falling through")
	} else if !errors.Is(err, cache.ErrNotFound) {
		h.log.WithError(err).Warn("cache read failed, falling through")
	}

	// Miss: the one authoritative read. No further fallback below this.
	list, err := h.durable.GetDanmus(ctx, videoID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query danmus for video %d: %w", videoID, err)
	}

	if len(list) > 0 {
		h.fill(ctx, key, nullKey, videoID, list)
		return list, nil
	}

	// Confirmed empty: negative marker plus an empty positive entry, both
	// short-lived. The bloom filter is deliberately not set here: only a
	// confirmed write or non-empty read ever sets bits, so videos with no
	// comments drop back out of the "maybe exists" signal.
	if err := h.store.Set(ctx, key, "[]", negativeTTL); err != nil {
		h.log.WithError(err).Warn("empty-entry cache write failed")
	}
	if err := h.store.Set(ctx, nullKey, "1", negativeTTL); err != nil {
		h.log.WithError(err).Warn("negative-cache write failed")
	}
	return []Danmu{}, nil
}

// Append adds a comment to the video's cached history and refreshes its
// TTL. This is the live write path: it never touches the durable store
// (persistence happens asynchronously elsewhere), so it stays fast.
func (h *History) Append(ctx context.Context, d Danmu) error {
	key := danmuKeyPrefix + strconv.FormatInt(d.VideoID, 10)

	var list []Danmu
	raw, err := h.store.Get(ctx, key)
	if err == nil {
		if list, err = decodeList(raw); err != nil {
			h.log.WithError(err).WithField("video", d.VideoID).Warn("corrupt cache entry, rebuilding")
			list = nil
		}
	} else if !errors.Is(err, cache.ErrNotFound) {
		h.log.WithError(err).Warn("cache read failed, rebuilding entry")
	}
	list = append(list, d)

	buf, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode danmu list: %w", err)
	}
	if err := h.store.Set(ctx, key, string(buf), positiveTTL); err != nil {
		return fmt.Errorf("cache danmu list for video %d: %w", d.VideoID, err)
	}

	// A new comment proves the video exists: set the bloom bits and clear
	// any stale confirmed-absent marker.
	if err := h.bloom.Put(ctx, bloomKey, strconv.FormatInt(d.VideoID, 10)); err != nil {
		h.log.WithError(err).Warn("bloom put failed")
	}
	if err := h.store.Del(ctx, nullKeyPrefix+strconv.FormatInt(d.VideoID, 10)); err != nil {
		h.log.WithError(err).Warn("negative-cache delete failed")
	}
	return nil
}

func (h *History) fill(ctx context.Context, key, nullKey string, videoID int64, list []Danmu) {
	buf, err := json.Marshal(list)
	if err != nil {
		h.log.WithError(err).Warn("encode danmu list failed")
		return
	}
	if err := h.store.Set(ctx, key, string(buf), positiveTTL); err != nil {
		h.log.WithError(err).Warn("cache fill failed")
	}
	if err := h.bloom.Put(ctx, bloomKey, strconv.FormatInt(videoID, 10)); err != nil {
		h.log.WithError(err).Warn("bloom put failed")
	}
	if err := h.store.Del(ctx, nullKey); err != nil {
		h.log.WithError(err).Warn("negative-cache delete failed")
	}
}

func decodeList(raw string) ([]Danmu, error) {
	if raw == "" {
		return nil, nil
	}
	var list []Danmu
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func filterRange(list []Danmu, from, to time.Time) []Danmu {
	if from.IsZero() || to.IsZero() {
		if list == nil {
			return []Danmu{}
		}
		return list
	}
	out := make([]Danmu, 0, len(list))
	for _, d := range list {
		if d.CreateTime.After(from) && d.CreateTime.Before(to) {
			out = append(out, d)
		}
	}
	return out
}
