package moment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"firefly-live/internal/cache"
)

const feedKeyPrefix = "subscribed-"

// FeedStore keeps each follower's moment backlog as a serialized list in
// the cache store, keyed by follower id.
type FeedStore struct {
	store cache.Store
	log   *logrus.Entry
}

func NewFeedStore(store cache.Store, log *logrus.Logger) *FeedStore {
	return &FeedStore{store: store, log: log.WithField("component", "moment-feed")}
}

// Push appends the moment to one follower's backlog. Read-modify-write
// with last-writer-wins: concurrent pushes for the same follower can lose
// an update, and broker redelivery can append a duplicate. Both are
// accepted; the backlog is a best-effort feed, not a ledger.
func (f *FeedStore) Push(ctx context.Context, followerID int64, m Moment) error {
	key := feedKeyPrefix + strconv.FormatInt(followerID, 10)

	var backlog []Moment
	raw, err := f.store.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &backlog); err != nil {
			f.log.WithError(err).WithField("follower", followerID).Warn("corrupt backlog, rebuilding")
			backlog = nil
		}
	case errors.Is(err, cache.ErrNotFound):
		// first moment for this follower
	default:
		return fmt.Errorf("read backlog for follower %d: %w", followerID, err)
	}

	backlog = append(backlog, m)
	buf, err := json.Marshal(backlog)
	if err != nil {
		return fmt.Errorf("encode backlog: %w", err)
	}
	if err := f.store.Set(ctx, key, string(buf), 0); err != nil {
		return fmt.Errorf("write backlog for follower %d: %w", followerID, err)
	}
	return nil
}

// Feed returns the follower's current backlog, empty when none exists.
func (f *FeedStore) Feed(ctx context.Context, followerID int64) ([]Moment, error) {
	raw, err := f.store.Get(ctx, feedKeyPrefix+strconv.FormatInt(followerID, 10))
	if errors.Is(err, cache.ErrNotFound) {
		return []Moment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backlog for follower %d: %w", followerID, err)
	}
	var backlog []Moment
	if err := json.Unmarshal([]byte(raw), &backlog); err != nil {
		return nil, fmt.Errorf("decode backlog for follower %d: %w", followerID, err)
	}
	return backlog, nil
}
