package redis

// DefaultKeyPrefix namespaces the queue keys.
const DefaultKeyPrefix = "fleetcron:scheduler:"

func (q *Queue) pendingKey() string    { return q.prefix + "pending" }
func (q *Queue) processingKey() string { return q.prefix + "processing" }

// keys returns KEYS[1], KEYS[2] for every script.
func (q *Queue) keys() []string {
	return []string{q.pendingKey(), q.processingKey()}
}
