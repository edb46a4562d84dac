package common

import (
	"github.com/google/uuid"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
)

var (
	version     = "unknown" // set with -ldflags "-X .../internal/common.version=..."
	sessionId   = uuid.NewString()
	startTimeMs = kcommon.GetWallTimeMs()
)

func GetVersion() string {
	return version
}

// GetSessionId identifies this worker process in logs.
func GetSessionId() string {
	return sessionId
}

func GetStartTimeMs() int64 {
	return startTimeMs
}
