// Package testutil: детерминированные часы и хранилище с внедрением ошибок для тестов.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock: ручные часы: Now не меняется, пока тест не вызовет Advance.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы и возвращает новое время.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick возвращает текущее время и сдвигает часы на step: каждое следующее значение строго больше.
func (c *Clock) Tick(step time.Duration) func() time.Time {
	return func() time.Time {
		c.mu.Lock()
		defer c.mu.Unlock()
		t := c.now
		c.now = c.now.Add(step)
		return t
	}
}

// IDs: последовательные id вида prefix-1, prefix-2, ...
type IDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

func NewIDs(prefix string) *IDs {
	return &IDs{prefix: prefix}
}

func (g *IDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}
