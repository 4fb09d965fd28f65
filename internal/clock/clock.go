// Package clock отделяет бизнес-логику от системного времени.
// В продакшене используется Real(), в тестах Fake() с ручным управлением.
package clock

import (
	"sync"
	"time"
)

// Clock отдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// Real возвращает часы на основе пакета time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FakeClock стоит на месте, пока его не сдвинут через Set или Advance.
// Безопасен для конкурентного использования.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// Fake создаёт FakeClock, выставленный на initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set переводит часы на t (в том числе назад).
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance сдвигает часы вперёд на d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
