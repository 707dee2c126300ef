// Package intake feeds relay command requests into the gateway and reports confirmations back to
// where each request came from.
package intake

import (
	"context"

	"gt06gateway/internal/core/model"
)

// Source names stored on each request so confirmations find their way back.
const (
	SourceFile = "file"
	SourceNATS = "nats"
	SourceAPI  = "api"
)

// Submitter is the gateway's command entry point.
type Submitter interface {
	Submit(ctx context.Context, req model.CommandRequest) (*model.PendingCommand, error)
}

// DeviceNoter writes a line to a device's own log.
type DeviceNoter interface {
	Note(imei, msg string)
}
