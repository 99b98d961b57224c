// Package utils provides tiktoken-based token counting.
package utils

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func defaultCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.ForModel(tokenizer.GPT4)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// CountTokensSimple counts tokens with the GPT-4 encoding, falling back to a
// four-bytes-per-token estimate when the codec is unavailable.
func CountTokensSimple(text string) int {
	c := defaultCodec()
	if c == nil {
		return len(text) / 4
	}
	count, err := c.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
