package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/infrastructure/config"
)

// InterfaceUserHomeService 用户与住宅关联服务接口
type InterfaceUserHomeService interface {
	CreateUser(ctx context.Context, orgID, name string) (*models.User, error)
	LinkUser(ctx context.Context, orgID, userID, homeID string) (*LinkResult, error)
	UnlinkUser(ctx context.Context, orgID, userID, homeID string) (*LinkResult, error)
	BulkLink(ctx context.Context, orgID string, input BulkLinkInput) (*BulkLinkResult, error)
	ListUserHomes(ctx context.Context, orgID, userID string) (*UserHomesView, error)
}

// LinkResult 单个关联写入的结果，Changed 表示关联行是否真的被创建或删除
type LinkResult struct {
	UserID  string      `json:"user_id"`
	HomeID  string      `json:"home_id"`
	Changed bool        `json:"changed"`
	Index   IndexStatus `json:"index"`
}

// BulkLinkInput 批量关联参数，同一用户不能同时出现在关联和解除列表中
type BulkLinkInput struct {
	HomeIDs       []string `json:"home_ids" binding:"required"`
	AttachUserIDs []string `json:"attach_user_ids"`
	DetachUserIDs []string `json:"detach_user_ids"`
}

// BulkLinkResult 批量关联的结果
type BulkLinkResult struct {
	HomeIDs         []string    `json:"home_ids"`
	IndexedHomeIDs  []string    `json:"indexed_home_ids"`
	SkippedDisabled []string    `json:"skipped_disabled,omitempty"`
	Index           IndexStatus `json:"index"`
}

// UserHomesView 用户可见住宅（来自索引）与关联住宅（来自关系库）
type UserHomesView struct {
	UserID        string   `json:"user_id"`
	HomeIDs       []string `json:"home_ids"`
	LinkedHomeIDs []string `json:"linked_home_ids"`
}

// UserHomeService 提供用户与住宅关联相关的服务
type UserHomeService struct {
	DB     *gorm.DB
	Config *config.Config
	Engine *index.Engine
	Locker *index.KeyedLocker
}

// NewUserHomeService 创建一个新的用户住宅关联服务
func NewUserHomeService(db *gorm.DB, cfg *config.Config, engine *index.Engine, locker *index.KeyedLocker) InterfaceUserHomeService {
	return &UserHomeService{
		DB:     db,
		Config: cfg,
		Engine: engine,
		Locker: locker,
	}
}

// 1 CreateUser 创建用户
func (s *UserHomeService) CreateUser(ctx context.Context, orgID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name 不能为空", ErrInvalidArgument)
	}
	user := &models.User{OrganizationID: orgID, Name: name}
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, translateDBError(err)
	}
	return user, nil
}

// 2 LinkUser 关联用户与住宅。住宅禁用时关联照常写入，但在索引中不可见
func (s *UserHomeService) LinkUser(ctx context.Context, orgID, userID, homeID string) (*LinkResult, error) {
	unlock := s.Locker.Lock(homeID)
	defer unlock()

	var home *models.Home
	var changed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if home, err = loadHome(tx, orgID, homeID); err != nil {
			return err
		}
		if _, err = loadUser(tx, orgID, userID); err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserHome{UserID: userID, HomeID: homeID})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	convErr := s.Engine.OnUserHomeLinked(ctx, userID, homeID, !home.Disabled)
	return &LinkResult{UserID: userID, HomeID: homeID, Changed: changed, Index: indexStatusOf(convErr)}, nil
}

// 3 UnlinkUser 解除用户与住宅的关联
func (s *UserHomeService) UnlinkUser(ctx context.Context, orgID, userID, homeID string) (*LinkResult, error) {
	unlock := s.Locker.Lock(homeID)
	defer unlock()

	var home *models.Home
	var changed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if home, err = loadHome(tx, orgID, homeID); err != nil {
			return err
		}
		if _, err = loadUser(tx, orgID, userID); err != nil {
			return err
		}

		result := tx.Where("user_id = ? AND home_id = ?", userID, homeID).Delete(&models.UserHome{})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	convErr := s.Engine.OnUserHomeUnlinked(ctx, userID, homeID, !home.Disabled)
	return &LinkResult{UserID: userID, HomeID: homeID, Changed: changed, Index: indexStatusOf(convErr)}, nil
}

// 4 BulkLink 批量关联与解除关联。禁用住宅的关联行照常写入，但跳过索引
func (s *UserHomeService) BulkLink(ctx context.Context, orgID string, input BulkLinkInput) (*BulkLinkResult, error) {
	homeIDs := uniqueStrings(input.HomeIDs)
	attach := uniqueStrings(input.AttachUserIDs)
	detach := uniqueStrings(input.DetachUserIDs)

	if len(homeIDs) == 0 {
		return nil, fmt.Errorf("%w: home_ids 不能为空", ErrInvalidArgument)
	}
	if len(attach) == 0 && len(detach) == 0 {
		return nil, fmt.Errorf("%w: 至少需要一个待关联或待解除的用户", ErrInvalidArgument)
	}
	detachSet := make(map[string]struct{}, len(detach))
	for _, id := range detach {
		detachSet[id] = struct{}{}
	}
	for _, id := range attach {
		if _, ok := detachSet[id]; ok {
			return nil, fmt.Errorf("%w: 用户 %s 同时出现在关联和解除列表中", ErrInvalidArgument, id)
		}
	}

	unlock := s.Locker.LockMany(homeIDs...)
	defer unlock()

	var snapshots []index.HomeSnapshot
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		homes, err := loadHomes(tx, orgID, homeIDs)
		if err != nil {
			return err
		}
		if err := loadUsers(tx, orgID, append(append([]string{}, attach...), detach...)); err != nil {
			return err
		}

		if len(attach) > 0 {
			links := make([]models.UserHome, 0, len(homeIDs)*len(attach))
			for _, homeID := range homeIDs {
				for _, userID := range attach {
					links = append(links, models.UserHome{UserID: userID, HomeID: homeID})
				}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
				return err
			}
		}
		if len(detach) > 0 {
			if err := tx.Where("home_id IN ? AND user_id IN ?", homeIDs, detach).Delete(&models.UserHome{}).Error; err != nil {
				return err
			}
		}

		for i := range homes {
			snapshots = append(snapshots, snapshotOf(&homes[i]))
		}
		return nil
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	result := &BulkLinkResult{HomeIDs: homeIDs, IndexedHomeIDs: []string{}}
	for _, home := range snapshots {
		if home.Disabled {
			result.SkippedDisabled = append(result.SkippedDisabled, home.ID)
		} else {
			result.IndexedHomeIDs = append(result.IndexedHomeIDs, home.ID)
		}
	}
	result.Index = indexStatusOf(s.Engine.OnBulkLink(ctx, snapshots, attach, detach))
	return result, nil
}

// 5 ListUserHomes 从索引读取用户可见的住宅，同时返回关系库中的关联供对照
func (s *UserHomeService) ListUserHomes(ctx context.Context, orgID, userID string) (*UserHomesView, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadUser(db, orgID, userID); err != nil {
		return nil, err
	}

	view := &UserHomesView{UserID: userID, LinkedHomeIDs: []string{}}
	if err := db.Model(&models.UserHome{}).Where("user_id = ?", userID).Order("home_id").Pluck("home_id", &view.LinkedHomeIDs).Error; err != nil {
		return nil, err
	}

	homeIDs, err := s.Engine.UserHomes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	view.HomeIDs = homeIDs
	return view, nil
}
