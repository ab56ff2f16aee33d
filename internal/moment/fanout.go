package moment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"firefly-live/internal/broker"
)

// Fanout is the moment-posted consumer: it resolves the author's follower
// set and pushes the moment onto every follower's backlog.
type Fanout struct {
	feeds *FeedStore
	graph FollowerGraph
	log   *logrus.Entry
}

func NewFanout(feeds *FeedStore, graph FollowerGraph, log *logrus.Logger) *Fanout {
	return &Fanout{feeds: feeds, graph: graph, log: log.WithField("component", "moment-fanout")}
}

// HandleDelivery is the broker handler for the moment-posted queue. A
// failed follower push fails the whole delivery; redelivery then appends
// duplicates for followers already served, which the feed tolerates.
func (f *Fanout) HandleDelivery(ctx context.Context, body []byte) error {
	var m Moment
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("decode moment event: %w", broker.ErrDrop)
	}

	followers, err := f.graph.GetFollowers(ctx, m.UserID)
	if err != nil {
		return fmt.Errorf("resolve followers of %d: %w", m.UserID, err)
	}

	for _, follower := range followers {
		if err := f.feeds.Push(ctx, follower, m); err != nil {
			return err
		}
	}
	f.log.WithFields(logrus.Fields{"author": m.UserID, "followers": len(followers)}).Debug("moment fanned out")
	return nil
}
