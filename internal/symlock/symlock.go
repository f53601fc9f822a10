// Package symlock даёт взаимное исключение по символу для входа и flatten.
package symlock

import (
	"context"
	"sync"
)

type Locks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func New() *Locks {
	return &Locks{slots: make(map[string]chan struct{})}
}

func (l *Locks) slot(symbol string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[symbol]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[symbol] = ch
	}
	return ch
}

// Acquire ждёт свободный символ или отмену ctx. release можно звать повторно.
func (l *Locks) Acquire(ctx context.Context, symbol string) (func(), error) {
	ch := l.slot(symbol)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

// TryAcquire не ждёт: ok == false, если символ занят.
func (l *Locks) TryAcquire(symbol string) (func(), bool) {
	ch := l.slot(symbol)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		return nil, false
	}
}
