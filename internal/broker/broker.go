package broker

import "errors"

// Exchange is the topic exchange both event classes publish through.
const Exchange = "firefly.events"

// Routing keys and queues, one pair per event class.
const (
	RouteDanmu  = "danmu.send"
	RouteMoment = "moment.post"

	QueueDanmus  = "firefly.danmus"
	QueueMoments = "firefly.moments"
)

// ErrDrop signals that a delivery is poison (undecodable or otherwise
// unprocessable) and must be dropped instead of requeued, regardless of
// the consumer's requeue policy.
var ErrDrop = errors.New("broker: drop delivery")
