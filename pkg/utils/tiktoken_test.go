package utils

import "testing"

func TestCountTokensSimple(t *testing.T) {
	if got := CountTokensSimple(""); got != 0 {
		t.Errorf("empty text: got %d tokens", got)
	}
	short := CountTokensSimple("hello")
	long := CountTokensSimple("hello world, this sentence has quite a few more tokens in it")
	if short <= 0 || long <= short {
		t.Errorf("unexpected counts: short=%d long=%d", short, long)
	}
}
