package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillMeta_Defaults(t *testing.T) {
	m := fillMeta(common.Meta{Type: "entity.changed.v1"}, "condo")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, m.ID, m.CorrelationID)
	assert.False(t, m.Time.IsZero())
	assert.Equal(t, "condo", m.Producer)
	assert.Equal(t, "entity.changed.v1", m.Type)
}

func TestFillMeta_KeepsExplicit(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	in := common.Meta{ID: "m-1", CorrelationID: "req-1", Producer: "billing", Time: at}
	assert.Equal(t, in, fillMeta(in, "condo"))
}

func TestBuildPublishing(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pub := buildPublishing([]byte(`{"id":"t-1"}`), common.Meta{
		ID: "m-1", CorrelationID: "req-1", Producer: "condo", Time: at, Type: "entity.changed.v1",
	})
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "m-1", pub.MessageId)
	assert.Equal(t, "req-1", pub.CorrelationId)
	assert.Equal(t, "entity.changed.v1", pub.Type)
	assert.Equal(t, "condo", pub.AppId)
	assert.Equal(t, at, pub.Timestamp)
	assert.JSONEq(t, `{"id":"t-1"}`, string(pub.Body))
}

func TestNewAMQPPublisher_RequiresURLAndExchange(t *testing.T) {
	_, err := NewAMQPPublisher(context.Background(), RabbitMQConfig{Exchange: "changes"}, nil)
	assert.Error(t, err)
	_, err = NewAMQPPublisher(context.Background(), RabbitMQConfig{URL: "amqp://localhost"}, nil)
	assert.Error(t, err)
}

func TestDialWithRetry_GivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	_, err := DialWithRetry(context.Background(), ConnectionOptions{
		URL:           "amqp://nowhere",
		RetryAttempts: 3,
		Delay:         time.Millisecond,
		Dial: func(context.Context, string) (*amqp.Connection, error) {
			calls++
			return nil, boom
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDialWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DialWithRetry(ctx, ConnectionOptions{
		RetryAttempts: 5,
		Delay:         time.Hour,
		Dial: func(context.Context, string) (*amqp.Connection, error) {
			return nil, errors.New("refused")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial cancelled")
}

func TestFallbackPublisher(t *testing.T) {
	p := NewFallback(nil)
	assert.NoError(t, p.Publish(context.Background(), Message{Topic: "condo.organization.org-1.ticket"}))
	assert.NoError(t, p.Close())
}
