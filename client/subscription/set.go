package subscription

import (
	"sort"

	"github.com/peer-calls/meetings/client/identifiers"
)

// Set is a set of subscriptions keyed by "<userId>-<type>". Duplicate keys
// are impossible by construction.
type Set map[identifiers.SubscriptionKey]identifiers.Subscription

func NewSet(subs ...identifiers.Subscription) Set {
	s := make(Set, len(subs))

	for _, sub := range subs {
		s.Add(sub)
	}

	return s
}

func (s Set) Add(sub identifiers.Subscription) {
	s[sub.Key()] = sub
}

func (s Set) Remove(sub identifiers.Subscription) {
	delete(s, sub.Key())
}

func (s Set) Has(sub identifiers.Subscription) bool {
	_, ok := s[sub.Key()]

	return ok
}

// Slice returns the subscriptions sorted by key.
func (s Set) Slice() []identifiers.Subscription {
	keys := make([]string, 0, len(s))

	for key := range s {
		keys = append(keys, string(key))
	}

	sort.Strings(keys)

	ret := make([]identifiers.Subscription, len(keys))

	for i, key := range keys {
		ret[i] = s[identifiers.SubscriptionKey(key)]
	}

	return ret
}

func (s Set) Clone() Set {
	ret := make(Set, len(s))

	for k, v := range s {
		ret[k] = v
	}

	return ret
}

func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}

	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}

	return true
}

// difference returns the sorted entries of a that are not in b.
func difference(a, b Set) []identifiers.Subscription {
	ret := Set{}

	for k, v := range a {
		if _, ok := b[k]; !ok {
			ret[k] = v
		}
	}

	return ret.Slice()
}

// Participant is the part of a roster entry that decides which remote
// streams can be subscribed to.
type Participant struct {
	UserID              identifiers.UserID
	AudioStreamEnabled  bool
	VideoStreamEnabled  bool
	ScreenStreamEnabled bool
}

// Delta is the change that needs to be requested from the backend.
type Delta struct {
	ToSubscribe   []identifiers.Subscription
	ToUnsubscribe []identifiers.Subscription
}

func (d Delta) IsEmpty() bool {
	return len(d.ToSubscribe) == 0 && len(d.ToUnsubscribe) == 0
}
