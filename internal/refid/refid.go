// Package refid generates "#<n>" reference ids from a process-local
// counter. The counter restarts with the process and is not coordinated
// across instances, so the ids are unique per run only; durable,
// collision-free ids would need persistence this playground does not have.
package refid

import (
	"fmt"
	"sync"
)

type Counter struct {
	mu   sync.Mutex
	next int64
}

func NewCounter(start int64) *Counter {
	return &Counter{next: start}
}

// Next returns the next reference id, e.g. "#164006".
func (c *Counter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return fmt.Sprintf("#%d", id)
}
