package middleware

import (
	"time"

	"PPresence/logger"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog 请求日志；websocket 握手只记升级前的部分
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[HTTP] access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

// Recovery panic 转 500 并记录堆栈
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[HTTP] panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.Error(errs.ErrPanic(r)),
					zap.Stack("stack"))
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
