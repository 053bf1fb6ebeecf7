package global

import (
	"net/http"

	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Sucess(data any) *Msg {
	return &Msg{
		Code: 200,
		Msg:  "",
		Data: data,
	}
}

// Fail 把错误转成统一响应，非业务错误不向外暴露细节
func Fail(err error) *Msg {
	ce, ok := errs.AsCode(err)
	if !ok {
		return &Msg{Code: ce.Code, Msg: ce.Msg}
	}
	m := ce.Msg
	if ce.Detail != "" {
		m = ce.Msg + ": " + ce.Detail
	}
	return &Msg{Code: ce.Code, Msg: m}
}

// Reply 统一输出：HTTP 状态码固定 200，业务状态看 code
func Reply(c *gin.Context, data any, err error) {
	if err != nil {
		c.JSON(http.StatusOK, Fail(err))
		return
	}
	c.JSON(http.StatusOK, Sucess(data))
}
