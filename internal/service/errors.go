package service

import "errors"

// 业务错误哨兵，handler 层据此映射响应码
var (
	ErrValidation          = errors.New("参数不合法")
	ErrInsufficientBalance = errors.New("金币余额不足")
	ErrForbidden           = errors.New("无权执行该操作")
	ErrNotFound            = errors.New("资源不存在")
	ErrConflict            = errors.New("状态已变更，请刷新后重试")
	ErrDeadlinePassed      = errors.New("免费加好友窗口已过")
	ErrTooEarly            = errors.New("免费加好友窗口未结束")
	ErrNoCandidates        = errors.New("暂无可匹配的对象")
)
