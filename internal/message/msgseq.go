package message

import (
	"math/rand/v2"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// msgSeqCapacity bounds the number of inbound message ids tracked for
// outbound sequence numbering. Evicted ids restart at 1, which is safe
// because the platform only requires uniqueness within a reply window.
const msgSeqCapacity = 100

// SeqCounter issues the msg_seq values attached to outbound replies. Each
// inbound message id gets its own monotonically increasing counter
// starting at 1.
type SeqCounter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, int]
}

// NewSeqCounter returns a counter tracking the most recent message ids.
func NewSeqCounter() *SeqCounter {
	cache, err := lru.New[string, int](msgSeqCapacity)
	if err != nil {
		// lru.New only fails for a non-positive size
		panic(err)
	}
	return &SeqCounter{cache: cache}
}

// Next returns the next sequence for msgID. Replies without an inbound
// message id get a clock-derived pseudo-random sequence instead, keeping
// uncorrelated sends distinct.
func (c *SeqCounter) Next(msgID string) int {
	if msgID == "" {
		ms := time.Now().UnixMilli()
		return int(ms%1000)*1000 + 100 + rand.IntN(900)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	seq, _ := c.cache.Get(msgID)
	seq++
	c.cache.Add(msgID, seq)
	return seq
}
