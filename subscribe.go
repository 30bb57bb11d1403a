// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"strings"
)

// Subscription is a topic filter the session client subscribes to on every
// connection, and the key of the handler that receives its messages.
type Subscription struct {
	TopicFilter string
	QoS         byte
	HandlerKey  string
}

const sharedPrefix = "$share/"

// IsTopicFilterMatch checks if a topic name matches a topic filter. Topics
// starting with '$' are never matched by a leading wildcard.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		_, filter, ok := strings.Cut(tf, "/")
		if !ok {
			return false
		}
		topicFilter = filter
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	if strings.HasPrefix(topicName, "$") &&
		(filters[0] == "+" || filters[0] == "#") {
		return false
	}

	for i, filter := range filters {
		switch {
		case filter == "#":
			// Multi-level wildcard must be at the end.
			return i == len(filters)-1
		case filter == "+":
			if i >= len(names) {
				return false
			}
		case i >= len(names) || filter != names[i]:
			return false
		}
	}
	return len(filters) == len(names)
}

// subscribe sends one SUBSCRIBE per configured subscription. SUBACKs are
// handled by the run loop.
func (c *SessionClient) subscribe(ctx context.Context, s *session) error {
	for _, sub := range c.subscriptions {
		id, err := s.ids.next(s.acks.outstanding)
		if err != nil {
			return err
		}
		s.pendingSubs[id] = sub.TopicFilter
		if err := c.send(
			ctx, s, "subscribe", buildSubscribe(id, []Subscription{sub}),
		); err != nil {
			return err
		}
	}
	return nil
}

// route returns the handler key of the first subscription matching topic.
func (c *SessionClient) route(topic string) (string, bool) {
	for _, sub := range c.subscriptions {
		if IsTopicFilterMatch(sub.TopicFilter, topic) {
			return sub.HandlerKey, true
		}
	}
	return "", false
}
