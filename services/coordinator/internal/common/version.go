package common

import "github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"

var (
	version     = "unknown" // set with -ldflags "-X .../internal/common.version=..."
	startTimeMs = kcommon.GetWallTimeMs()
)

func GetVersion() string {
	return version
}

func GetStartTimeMs() int64 {
	return startTimeMs
}
