package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTime(t *testing.T) {
	fixed := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestClientMetadata(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "10.0.0.1", "Mozilla/5.0", "Firefox")
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "Mozilla/5.0", UserAgent(ctx))
	assert.Equal(t, "Firefox", ClientName(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Subject(ctx))
}
