package security

import (
	"net/http"
	"strings"

	"PPresence/global"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key
// 后续模块统一用这俩 key 读取
const (
	PPCtxAuthKey   = "authorization" // string
	PPCtxUserIDKey = "userId"        // int64
)

// TokenVerifier token -> userId
type TokenVerifier interface {
	VerifyToken(token string) (int64, error)
}

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	EnableQueryToken          bool   // 允许 ?token=，websocket 握手需要
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		EnableQueryToken:          true,
	}
}

// TokenFromRequest 依次取 ?token=、自定义头、Authorization: Bearer
func TokenFromRequest(r *http.Request, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.EnableQueryToken {
		if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
			return t
		}
	}
	if opts.HeaderToken != "" && !strings.EqualFold(opts.HeaderToken, "Authorization") {
		if t := strings.TrimSpace(r.Header.Get(opts.HeaderToken)); t != "" {
			return t
		}
	}
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return ""
}

// Middleware REST 接口鉴权，成功后把 userId 写入 context
func Middleware(v TokenVerifier, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusOK, global.Fail(errs.ErrTokenMissing.Wrap()))
			return
		}
		uid, err := v.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, global.Fail(err))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxUserIDKey, uid)
		c.Next()
	}
}

// UserID 读取鉴权中间件写入的用户ID，未鉴权返回 0
func UserID(c *gin.Context) int64 {
	return c.GetInt64(PPCtxUserIDKey)
}
