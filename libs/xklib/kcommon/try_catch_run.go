package kcommon

import (
	"context"
	"fmt"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
)

// TryCatchRun turns a panic inside fn into a returned Kerror.
// Non-error panic values are wrapped too, a long-running loop must survive them.
func TryCatchRun(ctx context.Context, fn func()) (ret *kerror.Kerror) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *kerror.Kerror:
			ret = v
		case error:
			ret = kerror.Wrap(v, "UnknownError", "panic", true)
		default:
			klogging.Warning(ctx).WithPanic(r).Log("NonErrorPanic", "")
			ret = kerror.Create("UnknownError", fmt.Sprintf("panic: %v", r))
		}
	}()
	fn()
	return
}
