package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 小程序端约定的响应码：code=200 表示成功，code=401 触发静默重新登录，
// 其余业务失败只看 msg 文案。
const (
	CodeSuccess      = 200
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

const (
	CodeBalanceNotEnough = 1001
	CodeDeadlinePassed   = 1002
	CodeTooEarly         = 1003
	CodeNoCandidates     = 1004
)

type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "success",
		Data: data,
	})
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Error 业务失败统一走 HTTP 200，小程序只认 envelope 里的 code/msg
func Error(c *gin.Context, code int, msg string) {
	c.JSON(http.StatusOK, Response{
		Code: code,
		Msg:  msg,
	})
}

func ParamError(c *gin.Context, msg string) {
	Error(c, CodeParamError, msg)
}

func ServerError(c *gin.Context, msg string) {
	Error(c, CodeServerError, msg)
}

// Unauthorized 401 需要走 HTTP 状态码，客户端据此静默重登后重试
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Code: CodeUnauthorized,
		Msg:  "未登录或登录已过期",
	})
}
