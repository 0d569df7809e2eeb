package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/infrastructure/config"
)

// InterfaceAdminService 组织管理员服务接口，所有操作都限定在调用方所属组织内
type InterfaceAdminService interface {
	GetAdmins(ctx context.Context, orgID string, page, pageSize int, search string) ([]models.Admin, int64, error)
	GetAdmin(ctx context.Context, orgID, adminID string) (*models.Admin, error)
	CreateAdmin(ctx context.Context, orgID string, input AdminInput) (*models.Admin, error)
	UpdateAdmin(ctx context.Context, orgID, adminID string, patch AdminPatch) (*models.Admin, error)
	DeleteAdmin(ctx context.Context, orgID, adminID, operatorID string) error
}

// AdminInput 创建管理员参数
type AdminInput struct {
	Username string `json:"username" binding:"required" example:"ops"`
	Password string `json:"password" binding:"required,min=6" example:"Admin@123"`
}

// AdminPatch 更新管理员参数，nil 表示不修改
type AdminPatch struct {
	Password *string `json:"password" binding:"omitempty,min=6"`
	Status   *string `json:"status" binding:"omitempty,oneof=active inactive locked"`
}

// AdminService 提供管理员相关的服务
type AdminService struct {
	DB     *gorm.DB
	Config *config.Config
}

// NewAdminService 创建一个新的管理员服务
func NewAdminService(db *gorm.DB, cfg *config.Config) InterfaceAdminService {
	return &AdminService{
		DB:     db,
		Config: cfg,
	}
}

// 1 GetAdmins 分页获取组织内的管理员
func (s *AdminService) GetAdmins(ctx context.Context, orgID string, page, pageSize int, search string) ([]models.Admin, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var admins []models.Admin
	var total int64

	query := s.DB.WithContext(ctx).Model(&models.Admin{}).Where("organization_id = ?", orgID)
	if search != "" {
		query = query.Where("username LIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("username").Offset(offset).Limit(pageSize).Find(&admins).Error; err != nil {
		return nil, 0, err
	}
	return admins, total, nil
}

// 2 GetAdmin 获取管理员，跨组织访问返回 ErrAccessDenied
func (s *AdminService) GetAdmin(ctx context.Context, orgID, adminID string) (*models.Admin, error) {
	var admin models.Admin
	if err := s.DB.WithContext(ctx).Where("id = ?", adminID).First(&admin).Error; err != nil {
		return nil, translateDBError(err)
	}
	if admin.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	return &admin, nil
}

// 3 CreateAdmin 在组织内创建管理员，用户名全局唯一
func (s *AdminService) CreateAdmin(ctx context.Context, orgID string, input AdminInput) (*models.Admin, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username 不能为空", ErrInvalidArgument)
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Admin{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: 用户名 %s 已存在", ErrRelationalConflict, username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	admin := &models.Admin{
		Username:       username,
		Password:       string(hashed),
		OrganizationID: orgID,
		Role:           "admin",
		Status:         "active",
	}
	if err := s.DB.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, translateDBError(err)
	}
	return admin, nil
}

// 4 UpdateAdmin 修改密码或状态
func (s *AdminService) UpdateAdmin(ctx context.Context, orgID, adminID string, patch AdminPatch) (*models.Admin, error) {
	admin, err := s.GetAdmin(ctx, orgID, adminID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("密码加密失败: %w", err)
		}
		updates["password"] = string(hashed)
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if len(updates) == 0 {
		return admin, nil
	}

	if err := s.DB.WithContext(ctx).Model(admin).Updates(updates).Error; err != nil {
		return nil, translateDBError(err)
	}
	return s.GetAdmin(ctx, orgID, adminID)
}

// 5 DeleteAdmin 删除管理员，不能删除自己，组织内至少保留一个管理员
func (s *AdminService) DeleteAdmin(ctx context.Context, orgID, adminID, operatorID string) error {
	if adminID == operatorID {
		return fmt.Errorf("%w: 不能删除当前登录的管理员", ErrInvalidArgument)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.Admin
		if err := tx.Where("id = ?", adminID).First(&admin).Error; err != nil {
			return translateDBError(err)
		}
		if admin.OrganizationID != orgID {
			return ErrAccessDenied
		}

		var count int64
		if err := tx.Model(&models.Admin{}).Where("organization_id = ?", orgID).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: 组织必须至少有一个管理员", ErrRelationalConflict)
		}

		return tx.Delete(&admin).Error
	})
}
