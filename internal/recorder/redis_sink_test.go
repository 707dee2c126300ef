package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gt06gateway/internal/cache"
	"gt06gateway/internal/core/model"
)

func TestRedisSinkDisabledClient(t *testing.T) {
	sink := NewRedisSink(cache.New(""), time.Minute, time.Hour)
	imei := "86713450902015"

	err := sink.Write(context.Background(), model.FrameRecord{IMEI: &imei, Kind: "heartbeat", ReceivedAt: time.Now()})
	assert.NoError(t, err)

	_, err = sink.Session(context.Background(), imei)
	assert.Error(t, err)
}
