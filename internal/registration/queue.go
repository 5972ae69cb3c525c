package registration

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token is one registration request. It carries no payload beyond what is
// useful in logs.
type Token struct {
	At time.Time // when the trigger fired
	ID uuid.UUID // correlates a trigger with the cycle that served it
}

// Queue is an unbounded FIFO of tokens. Any number of goroutines may Push;
// one consumer Pops.
type Queue struct {
	items []Token
	mu    sync.Mutex
}

// Push appends tok and returns the queue length afterwards.
func (q *Queue) Push(tok Token) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tok)
	return len(q.items)
}

// Pop removes and returns the oldest token.
func (q *Queue) Pop() (Token, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Token{}, false
	}
	tok := q.items[0]
	q.items[0] = Token{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return tok, true
}

// Len returns the number of queued tokens.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
