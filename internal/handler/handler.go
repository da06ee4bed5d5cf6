package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"collisionsystem/internal/config"
	"collisionsystem/internal/repository"
	"collisionsystem/internal/service"
	"collisionsystem/pkg/response"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	userSvc    *service.UserService
	ledgerSvc  *service.LedgerService
	codeSvc    *service.CodeService
	matchSvc   *service.MatchService
	matcherSvc *service.MatcherService
	hotTagSvc  *service.HotTagService
}

// NewHandler 创建处理器实例，仓储和服务在这里集中装配
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	hotTagRepo := repository.NewHotTagRepository(db)

	ledgerSvc := service.NewLedgerService(db, rdb, userRepo, ledgerRepo)
	hotTagSvc := service.NewHotTagService(hotTagRepo, rdb, cfg)
	notifySvc := service.NewNotifyService(outboxRepo, emailLogRepo, cfg)
	matcherSvc := service.NewMatcherService(db, rdb, cfg, codeRepo, matchRepo, userRepo, notifySvc, hotTagSvc)
	codeSvc := service.NewCodeService(db, cfg, userRepo, codeRepo, ledgerSvc, hotTagSvc, matcherSvc)
	matchSvc := service.NewMatchService(db, rdb, cfg, matchRepo, codeRepo, userRepo, emailLogRepo,
		ledgerSvc, notifySvc, hotTagSvc)

	return &Handler{
		userSvc:    service.NewUserService(userRepo),
		ledgerSvc:  ledgerSvc,
		codeSvc:    codeSvc,
		matchSvc:   matchSvc,
		matcherSvc: matcherSvc,
		hotTagSvc:  hotTagSvc,
	}
}

// respondError 业务错误统一映射到响应码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(c, response.CodeParamError, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.Error(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.Error(c, response.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Error(c, response.CodeConflict, err.Error())
	case errors.Is(err, service.ErrDeadlinePassed):
		response.Error(c, response.CodeDeadlinePassed, err.Error())
	case errors.Is(err, service.ErrTooEarly):
		response.Error(c, response.CodeTooEarly, err.Error())
	case errors.Is(err, service.ErrNoCandidates):
		response.Error(c, response.CodeNoCandidates, err.Error())
	default:
		log.Printf("[Handler] 未预期错误: %v", err)
		response.ServerError(c, "服务器内部错误")
	}
}

// ============================================================
// 账户与用户接口
// ============================================================

// GetBalance 查询金币余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledgerSvc.Balance(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"coins": balance})
}

// GetRecords 分页查询账本流水
// GET /api/v1/account/records?kind=consume&page=1&page_size=20
func (h *Handler) GetRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	kind := c.Query("kind")

	entries, total, err := h.ledgerSvc.Records(c.Request.Context(), currentUserID(c), kind, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  entries,
		"total": total,
	})
}

// PayCallbackRequest 支付渠道回调，order_no 作幂等键
type PayCallbackRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
	OrderNo string `json:"order_no" binding:"required"`
}

// PayCallback 充值回调（渠道侧调用，不走登录态）
// POST /api/v1/pay/callback
func (h *Handler) PayCallback(c *gin.Context) {
	var req PayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.ledgerSvc.Recharge(c.Request.Context(), req.UserID, req.Amount, req.OrderNo)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"entry_no": entry.EntryNo,
		"balance":  entry.BalanceAfter,
	})
}

// GetProfile 个人资料
// GET /api/v1/user/profile
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.userSvc.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, user)
}

// UpdateSettings 修改资料与碰撞开关
// PUT /api/v1/user/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.userSvc.UpdateSettings(c.Request.Context(), currentUserID(c), &req); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, nil, "保存成功")
}
