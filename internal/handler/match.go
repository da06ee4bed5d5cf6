package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"collisionsystem/pkg/response"
)

// ============================================================
// 匹配接口
// ============================================================

// ListMatches 我的匹配列表
// GET /api/v1/match/list
func (h *Handler) ListMatches(c *gin.Context) {
	views, err := h.matchSvc.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": views})
}

// GetMatch 匹配详情，联系方式按窗口状态打码
// GET /api/v1/match/detail?match_id=xxx
func (h *Handler) GetMatch(c *gin.Context) {
	matchID, err := strconv.ParseInt(c.Query("match_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "match_id 参数错误")
		return
	}

	view, err := h.matchSvc.Detail(c.Request.Context(), currentUserID(c), matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, view)
}

// MatchActionRequest 匹配动作通用入参
type MatchActionRequest struct {
	MatchID   int64  `json:"match_id" binding:"required"`
	RequestID string `json:"request_id"`
}

// AddFriend 窗口内免费确认加好友
// POST /api/v1/match/add-friend
func (h *Handler) AddFriend(c *gin.Context) {
	var req MatchActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.matchSvc.AddFriend(c.Request.Context(), currentUserID(c), req.MatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, view)
}

// SkipMatch 放弃这次匹配
// POST /api/v1/match/skip
func (h *Handler) SkipMatch(c *gin.Context) {
	var req MatchActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.matchSvc.Skip(c.Request.Context(), currentUserID(c), req.MatchID); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, nil, "已放弃")
}

// ForceAdd 窗口过期后付费强制加好友
// POST /api/v1/match/force-add
func (h *Handler) ForceAdd(c *gin.Context) {
	var req MatchActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.matchSvc.ForceAdd(c.Request.Context(), currentUserID(c), req.MatchID, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, view)
}

// HaidilaoRequest 海底捞请求
type HaidilaoRequest struct {
	Tag       string `json:"tag" binding:"required"`
	RequestID string `json:"request_id"`
}

// Haidilao 付费无视区域捞一个同关键词的人
// POST /api/v1/match/haidilao
func (h *Handler) Haidilao(c *gin.Context) {
	var req HaidilaoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.matchSvc.Haidilao(c.Request.Context(), currentUserID(c), req.Tag, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, view)
}

// SendEmailRequest 给匹配对象发邮件
type SendEmailRequest struct {
	MatchID   int64  `json:"match_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
	RequestID string `json:"request_id"`
}

// SendEmail 付费给匹配对象发一封信
// POST /api/v1/match/send-email
func (h *Handler) SendEmail(c *gin.Context) {
	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.matchSvc.SendEmail(c.Request.Context(), currentUserID(c),
		req.MatchID, req.Content, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, nil, "已进入发送队列")
}
