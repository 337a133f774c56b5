package notify

import "github.com/cespare/xxhash/v2"

// Notification is one pending outbound notification.
type Notification struct {
	Channel string
	Payload string
}

// dedupHashThreshold is the list length at which duplicate checks switch
// from a linear scan to the hash index.
const dedupHashThreshold = 16

// notificationSet keeps a scope's pending notifications in arrival order
// and deduplicates them: repeated identical notifications within one scope
// count once. Small scopes are scanned linearly; past the threshold an
// xxhash index bounds the cost.
type notificationSet struct {
	items []Notification
	index map[uint64][]int
}

func hashNotification(n Notification) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(n.Channel)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(n.Payload)
	return d.Sum64()
}

// Contains reports whether an identical notification is already pending.
func (s *notificationSet) Contains(n Notification) bool {
	if s.index != nil {
		for _, i := range s.index[hashNotification(n)] {
			if s.items[i] == n {
				return true
			}
		}
		return false
	}
	for _, it := range s.items {
		if it == n {
			return true
		}
	}
	return false
}

// Add appends n unless it is a duplicate. Reports whether it was added.
func (s *notificationSet) Add(n Notification) bool {
	if s.Contains(n) {
		return false
	}
	s.items = append(s.items, n)
	if s.index != nil {
		h := hashNotification(n)
		s.index[h] = append(s.index[h], len(s.items)-1)
	} else if len(s.items) >= dedupHashThreshold {
		s.index = make(map[uint64][]int, len(s.items)*2)
		for i, it := range s.items {
			h := hashNotification(it)
			s.index[h] = append(s.index[h], i)
		}
	}
	return true
}

func (s *notificationSet) len() int { return len(s.items) }
