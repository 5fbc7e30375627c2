package pubsub

import (
	"math/rand"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func Dsec(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(v) * time.Second
}

func JitteredDelay(base, cap time.Duration, jitterPct int) time.Duration {
	if jitterPct <= 0 {
		jitterPct = 25
	}
	delta := (rand.Float64()*2 - 1) * float64(jitterPct) / 100.0
	wait := time.Duration(float64(base) * (1 + delta))
	if wait < 0 {
		wait = base
	}
	if wait > cap {
		wait = cap
	}
	return wait
}

func FirstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func SafeClose(ch *amqp.Channel) error {
	if ch == nil {
		return nil
	}
	defer func() { _ = recover() }()
	return ch.Close()
}

// MatchTopic reports whether key matches an AMQP topic binding pattern.
// '*' matches exactly one word, '#' matches zero or more.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pat, key []string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case "#":
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pat[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pat[0] {
				return false
			}
		}
		pat, key = pat[1:], key[1:]
	}
	return len(key) == 0
}
