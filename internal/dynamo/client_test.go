package dynamo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/messaging-gateway/internal/dynamo"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"localstack endpoint", "http://localhost:4566"},
		{"default endpoint", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := dynamo.NewClient(context.Background(), dynamo.Config{
				Endpoint: tt.endpoint,
				Region:   "eu-west-1",
				Timeout:  5 * time.Second,
			})

			require.NoError(t, err)
			require.NotNil(t, client.DB)
		})
	}
}

func TestIsConditionalCheckFailed(t *testing.T) {
	assert.True(t, dynamo.IsConditionalCheckFailed(dynamo.ErrConditionalCheckFailed()))
	assert.True(t, dynamo.IsConditionalCheckFailed(fmt.Errorf("wrapped: %w", dynamo.ErrConditionalCheckFailed())))
	assert.False(t, dynamo.IsConditionalCheckFailed(fmt.Errorf("other")))
}

func TestMarshalRoundTrip(t *testing.T) {
	type item struct {
		Key      string `dynamodbav:"otp_key"`
		Attempts int    `dynamodbav:"attempts"`
	}

	av, err := dynamo.MarshalMap(item{Key: "otp:verification:22890123456", Attempts: 2})
	require.NoError(t, err)
	require.Contains(t, av, "otp_key")

	var got item
	require.NoError(t, dynamo.UnmarshalMap(av, &got))
	assert.Equal(t, 2, got.Attempts)
}
