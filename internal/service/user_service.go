package service

import (
	"context"
	"errors"

	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

// UpdateSettingsRequest 可自助修改的资料与开关，指针区分"没传"和"改成零值"
type UpdateSettingsRequest struct {
	Nickname        *string `json:"nickname"`
	Avatar          *string `json:"avatar"`
	WechatNo        *string `json:"wechat_no"`
	Gender          *int    `json:"gender"`
	Age             *int    `json:"age"`
	Country         *string `json:"country"`
	Province        *string `json:"province"`
	City            *string `json:"city"`
	District        *string `json:"district"`
	LocationVisible *bool   `json:"location_visible"`
	AllowForceAdd   *bool   `json:"allow_force_add"`
	AllowHaidilao   *bool   `json:"allow_haidilao"`
	EmailVisible    *bool   `json:"email_visible"`
}

type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateSettings 白名单更新：只有显式传了的字段才落库
func (s *UserService) UpdateSettings(ctx context.Context, userID int64, req *UpdateSettingsRequest) error {
	updates := map[string]interface{}{}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if req.WechatNo != nil {
		updates["wechat_no"] = *req.WechatNo
	}
	if req.Gender != nil {
		if *req.Gender < 0 || *req.Gender > 2 {
			return ErrValidation
		}
		updates["gender"] = *req.Gender
	}
	if req.Age != nil {
		if *req.Age < 0 || *req.Age > 150 {
			return ErrValidation
		}
		updates["age"] = *req.Age
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.Province != nil {
		updates["province"] = *req.Province
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.District != nil {
		updates["district"] = *req.District
	}
	if req.LocationVisible != nil {
		updates["location_visible"] = *req.LocationVisible
	}
	if req.AllowForceAdd != nil {
		updates["allow_force_add"] = *req.AllowForceAdd
	}
	if req.AllowHaidilao != nil {
		updates["allow_haidilao"] = *req.AllowHaidilao
	}
	if req.EmailVisible != nil {
		updates["email_visible"] = *req.EmailVisible
	}
	if len(updates) == 0 {
		return ErrValidation
	}

	err := s.userRepo.UpdateSettings(ctx, userID, updates)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrNotFound
	}
	return err
}
