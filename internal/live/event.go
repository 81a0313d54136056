// Package live implements standing queries: subscriptions that re-deliver a
// full result set whenever a relevant change event is published.
package live

import "slices"

// Topic names a family of change events.
type Topic string

const (
	TopicAccounts Topic = "accounts"
	TopicFollows  Topic = "follows"
	TopicPosts    Topic = "posts"
	TopicLikes    Topic = "likes"
	TopicSaves    Topic = "saves"
	TopicComments Topic = "comments"
	TopicMessages Topic = "messages"
)

// Event announces that data under Topic changed. Keys identify the affected
// entities (post id, account id, conversation id) and may be empty.
type Event struct {
	Topic Topic    `json:"topic"`
	Keys  []string `json:"keys,omitempty"`
}

// Matcher decides whether an event is relevant to a subscription.
type Matcher func(Event) bool

// OnTopic matches every event of the topic.
func OnTopic(topic Topic) Matcher {
	return func(ev Event) bool {
		return ev.Topic == topic
	}
}

// OnKey matches events of the topic that carry key.
func OnKey(topic Topic, key string) Matcher {
	return func(ev Event) bool {
		return ev.Topic == topic && slices.Contains(ev.Keys, key)
	}
}

// AnyOf matches when at least one matcher does.
func AnyOf(matchers ...Matcher) Matcher {
	return func(ev Event) bool {
		for _, m := range matchers {
			if m(ev) {
				return true
			}
		}
		return false
	}
}
