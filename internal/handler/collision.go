package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collisionsystem/internal/location"
	"collisionsystem/internal/model"
	"collisionsystem/internal/service"
	"collisionsystem/pkg/response"
)

// ============================================================
// 碰撞码接口
// ============================================================

// codeView 我的碰撞码展示视图，状态带懒计算的过期
func codeView(code *model.CollisionCode, now time.Time) gin.H {
	view := gin.H{
		"id":          code.ID,
		"tag":         code.Tag,
		"status":      code.DisplayStatus(now),
		"location":    code.SearchLocation(),
		"gender":      code.Gender,
		"age_min":     code.AgeMin,
		"age_max":     code.AgeMax,
		"expires_at":  code.ExpiresAt,
		"is_expired":  code.IsExpired(now),
		"is_matched":  code.IsMatched,
		"match_count": code.MatchCount,
		"cost_coins":  code.CostCoins,
		"created_at":  code.CreatedAt,
	}
	if code.Status == model.CodeStatusRejected {
		view["reject_reason"] = code.RejectReason
	}
	return view
}

// SubmitCode 发布碰撞码
// POST /api/v1/collision/submit
func (h *Handler) SubmitCode(c *gin.Context) {
	var req service.SubmitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	code, err := h.codeSvc.Submit(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, codeView(code, time.Now()))
}

// BatchSubmitRequest 批量发布请求
type BatchSubmitRequest struct {
	Tags      []string          `json:"tags" binding:"required"`
	Location  location.Snapshot `json:"location"`
	RequestID string            `json:"request_id"`
}

// BatchSubmitCode 批量发布碰撞码，一次扣费
// POST /api/v1/collision/batch-submit
func (h *Handler) BatchSubmitCode(c *gin.Context) {
	var req BatchSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	codes, err := h.codeSvc.BatchSubmit(c.Request.Context(), currentUserID(c),
		req.Tags, req.Location, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	views := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		views = append(views, codeView(code, now))
	}
	response.Success(c, gin.H{"list": views})
}

// ListMyCodes 我的碰撞码列表
// GET /api/v1/collision/mine
func (h *Handler) ListMyCodes(c *gin.Context) {
	codes, err := h.codeSvc.ListMine(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	views := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		views = append(views, codeView(code, now))
	}
	response.Success(c, gin.H{"list": views})
}

// GetMyCode 我的碰撞码详情
// GET /api/v1/collision/detail?code_id=xxx
func (h *Handler) GetMyCode(c *gin.Context) {
	codeID, err := strconv.ParseInt(c.Query("code_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "code_id 参数错误")
		return
	}

	code, err := h.codeSvc.GetMine(c.Request.Context(), currentUserID(c), codeID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, codeView(code, time.Now()))
}

// RenewRequest 续期请求
type RenewRequest struct {
	CodeID    int64  `json:"code_id" binding:"required"`
	Days      int    `json:"days" binding:"required,gt=0"`
	RequestID string `json:"request_id"`
}

// RenewCode 续期碰撞码
// POST /api/v1/collision/renew
func (h *Handler) RenewCode(c *gin.Context) {
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	code, err := h.codeSvc.Renew(c.Request.Context(), currentUserID(c), req.CodeID, req.Days, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, codeView(code, time.Now()))
}

// ResubmitRequest 重新提交请求
type ResubmitRequest struct {
	CodeID    int64  `json:"code_id" binding:"required"`
	RequestID string `json:"request_id"`
}

// ResubmitCode 被拒的码重新提交
// POST /api/v1/collision/resubmit
func (h *Handler) ResubmitCode(c *gin.Context) {
	var req ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	code, err := h.codeSvc.Resubmit(c.Request.Context(), currentUserID(c), req.CodeID, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, codeView(code, time.Now()))
}

// DeleteCodeRequest 删除请求
type DeleteCodeRequest struct {
	CodeID int64 `json:"code_id" binding:"required"`
}

// DeleteCode 删除碰撞码，当天删退费
// POST /api/v1/collision/delete
func (h *Handler) DeleteCode(c *gin.Context) {
	var req DeleteCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.codeSvc.Delete(c.Request.Context(), currentUserID(c), req.CodeID); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, nil, "删除成功")
}

// SearchCodes 按关键词搜索他人的碰撞码
// GET /api/v1/collision/search?tag=xxx
func (h *Handler) SearchCodes(c *gin.Context) {
	results, err := h.codeSvc.Search(c.Request.Context(), currentUserID(c), c.Query("tag"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": results})
}

// HotTags 热门关键词榜单
// GET /api/v1/collision/hot-tags?limit=20
func (h *Handler) HotTags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tags, err := h.hotTagSvc.Top(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]gin.H, 0, len(tags))
	for _, tag := range tags {
		views = append(views, gin.H{
			"keyword":      tag.Keyword,
			"submit_count": tag.SubmitCount,
			"match_count":  tag.MatchCount,
		})
	}
	response.Success(c, gin.H{"list": views})
}
