package realtime

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// ParticipantSource resolves the two participants of a thread.
type ParticipantSource interface {
	Participants(ctx context.Context, threadID string) ([2]string, error)
}

// ParticipantCache memoises thread participants. A thread's participants
// never change, so entries need no invalidation.
type ParticipantCache struct {
	src   ParticipantSource
	cache *lru.Cache
}

func NewParticipantCache(src ParticipantSource, size int) (*ParticipantCache, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ParticipantCache{src: src, cache: cache}, nil
}

func (p *ParticipantCache) Participants(ctx context.Context, threadID string) ([2]string, error) {
	if v, ok := p.cache.Get(threadID); ok {
		return v.([2]string), nil
	}
	pair, err := p.src.Participants(ctx, threadID)
	if err != nil {
		return [2]string{}, err
	}
	p.cache.Add(threadID, pair)
	return pair, nil
}
