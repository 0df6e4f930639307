package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/battleship-go/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing
type MockRandom struct {
	mu sync.Mutex

	intnResults []int
	intnIndex   int

	stringResults []string
	stringIndex   int

	uuidResults []string
	uuidIndex   int
	uuidCounter int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.intnResults) {
		return 0
	}
	result := r.intnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// String returns the next queued result, or empty string if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex >= len(r.stringResults) {
		return ""
	}
	result := r.stringResults[r.stringIndex]
	r.stringIndex++
	return result
}

// UUID returns the next queued result. Once the queue is drained it
// returns sequential ids so that callers still get unique values.
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uuidIndex < len(r.uuidResults) {
		result := r.uuidResults[r.uuidIndex]
		r.uuidIndex++
		return result
	}
	r.uuidCounter++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", r.uuidCounter)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = append(r.intnResults, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stringResults = append(r.stringResults, values...)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uuidResults = append(r.uuidResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = nil
	r.intnIndex = 0
	r.stringResults = nil
	r.stringIndex = 0
	r.uuidResults = nil
	r.uuidIndex = 0
}
