package networking

import (
	"hash/fnv"
	"sync"
	"time"
)

// InMemoryTokenStore is a sharded, process-local TokenStore.
type InMemoryTokenStore struct {
	shards    []*tokenShard
	numShards int
	now       func() time.Time
}

type tokenShard struct {
	mu    sync.RWMutex
	store map[string]*Token
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	numShards := 16
	shards := make([]*tokenShard, numShards)
	for i := range shards {
		shards[i] = &tokenShard{
			store: make(map[string]*Token),
		}
	}
	return &InMemoryTokenStore{
		shards:    shards,
		numShards: numShards,
		now:       time.Now,
	}
}

func (s *InMemoryTokenStore) getShard(name string) *tokenShard {
	hash := fnv.New32a()
	hash.Write([]byte(name))
	return s.shards[hash.Sum32()%uint32(s.numShards)]
}

// Get returns the token stored under name. Expired tokens are reported as
// misses and left for the next Set to overwrite.
func (s *InMemoryTokenStore) Get(name string) (*Token, bool) {
	shard := s.getShard(name)
	shard.mu.RLock()
	tok, exists := shard.store[name]
	shard.mu.RUnlock()

	if !exists || tok.Expired(s.now()) {
		return nil, false
	}
	return tok, true
}

// Set stores a copy of token under token.Name.
func (s *InMemoryTokenStore) Set(token *Token) {
	if token == nil {
		return
	}
	cp := *token
	shard := s.getShard(cp.Name)
	shard.mu.Lock()
	shard.store[cp.Name] = &cp
	shard.mu.Unlock()
}

func (s *InMemoryTokenStore) Delete(name string) {
	shard := s.getShard(name)
	shard.mu.Lock()
	delete(shard.store, name)
	shard.mu.Unlock()
}

func (s *InMemoryTokenStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Token)
		shard.mu.Unlock()
	}
}

// Len returns the number of stored tokens, expired ones included.
func (s *InMemoryTokenStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
