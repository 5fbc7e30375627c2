package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"condo.organization.org-1.ticket", "condo.organization.org-1.ticket", true},
		{"condo.organization.org-1.#", "condo.organization.org-1.ticket", true},
		{"condo.organization.org-1.#", "condo.organization.org-1", true},
		{"condo.organization.*.ticket", "condo.organization.org-9.ticket", true},
		{"condo.organization.*.ticket", "condo.organization.org-9.ticketComment", false},
		{"condo.*.org-1.*", "condo.user.org-1.ticket", true},
		{"condo.organization.org-1.#", "condo.organization.org-2.ticket", false},
		{"#", "anything.at.all", true},
		{"#.ticket", "condo.organization.org-1.ticket", true},
		{"*", "two.words", false},
		{"condo.#.ticket", "condo.ticket", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchTopic(c.pattern, c.key), "%s ~ %s", c.pattern, c.key)
	}
}

func TestJitteredDelay_Bounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := JitteredDelay(time.Second, 2*time.Second, 25)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	assert.Equal(t, 2*time.Second, JitteredDelay(10*time.Second, 2*time.Second, 1))
}

func TestDsec(t *testing.T) {
	assert.Equal(t, 30*time.Second, Dsec(0, 30))
	assert.Equal(t, 5*time.Second, Dsec(5, 30))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", FirstNonEmpty("a", "b"))
	assert.Equal(t, "b", FirstNonEmpty("", "b"))
}
