package runtime

import (
	"os"
)

type (
	DaemonOption func(*DaemonCtx)
)

func WithDaemonTermination(ch chan os.Signal) DaemonOption {
	return func(ctx *DaemonCtx) {
		ctx.shutdownChannel = ch
	}
}
