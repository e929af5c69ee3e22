package scheduler

import "sync"

// ObservedList is the ordered record of observations selected during a
// night, keyed by sequence time. Storing under an existing key replaces
// that entry in place.
type ObservedList struct {
	mu   sync.RWMutex
	keys []string
	obs  map[string]*Observation
}

// NewObservedList returns an empty list.
func NewObservedList() *ObservedList {
	return &ObservedList{obs: make(map[string]*Observation)}
}

// Add stores obs under seqTime.
func (l *ObservedList) Add(seqTime string, obs *Observation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.obs[seqTime]; !ok {
		l.keys = append(l.keys, seqTime)
	}
	l.obs[seqTime] = obs
}

// Get returns the observation stored under seqTime.
func (l *ObservedList) Get(seqTime string) (*Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	obs, ok := l.obs[seqTime]
	return obs, ok
}

// ContainsField reports whether any entry observed the named field.
func (l *ObservedList) ContainsField(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, obs := range l.obs {
		if obs.Name() == name {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *ObservedList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Keys returns the sequence times in insertion order.
func (l *ObservedList) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.keys...)
}

// Values returns the observations in insertion order.
func (l *ObservedList) Values() []*Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Observation, 0, len(l.keys))
	for _, k := range l.keys {
		out = append(out, l.obs[k])
	}
	return out
}

// Reset empties the list.
func (l *ObservedList) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = nil
	l.obs = make(map[string]*Observation)
}
