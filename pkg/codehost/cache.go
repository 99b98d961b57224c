package codehost

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes FetchContent results of another host. Errors are not
// cached.
type Cached struct {
	Host
	contents *lru.Cache[string, string]
}

// NewCached wraps host with a content cache of size entries.
func NewCached(host Host, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Host: host, contents: c}, nil
}

func (c *Cached) FetchContent(ctx context.Context, repo, path string) (string, error) {
	key := repo + ":" + path
	if v, ok := c.contents.Get(key); ok {
		return v, nil
	}
	v, err := c.Host.FetchContent(ctx, repo, path)
	if err != nil {
		return "", err
	}
	c.contents.Add(key, v)
	return v, nil
}
