package srt

import (
	"math/rand"
	"testing"
)

type detCookieRand struct{ seed *rand.Rand }

func (d detCookieRand) Read(p []byte) (int, error) { return d.seed.Read(p) }

func TestCookieJar_MakeValidate(t *testing.T) {
	var jar CookieJar
	err := jar.Reset(detCookieRand{rand.New(rand.NewSource(1))}, 2)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	addr := []byte{10, 0, 0, 5}
	port := uint16(9000)
	cookie := jar.Make(addr, port)

	if !jar.Validate(addr, port, cookie) {
		t.Error("freshly issued cookie failed validation")
	}
	if jar.Validate([]byte{10, 0, 0, 6}, port, cookie) {
		t.Error("cookie validated against the wrong peer address")
	}
	if jar.Validate(addr, port+1, cookie) {
		t.Error("cookie validated against the wrong peer port")
	}
}

func TestCookieJar_CounterExpiration(t *testing.T) {
	var jar CookieJar
	err := jar.Reset(detCookieRand{rand.New(rand.NewSource(2))}, 1)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	addr := []byte{192, 168, 0, 1}
	port := uint16(443)
	cookie := jar.Make(addr, port)

	jar.IncrementCounter()
	if !jar.Validate(addr, port, cookie) {
		t.Error("cookie should still validate within max_counter_delta=1")
	}

	jar.IncrementCounter()
	if jar.Validate(addr, port, cookie) {
		t.Error("cookie should have expired past max_counter_delta=1")
	}
}
