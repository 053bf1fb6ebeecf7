package safe

import (
	"PPresence/logger"
	"PPresence/tools/errs"

	"go.uber.org/zap"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(name string, f func()) {
	go Run(name, f)
}

// Run 同步执行 f，panic 会被记录并吞掉
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SafeGo] panic recovered",
				zap.String("task", name),
				zap.Error(errs.ErrPanic(r)),
				zap.Stack("stack"))
		}
	}()
	f()
}
