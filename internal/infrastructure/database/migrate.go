package database

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/models"
	Logger "smarthome-index-service/pkg/logger"
)

// AutoMigrate 自动迁移所有模型（只添加新列和新表）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.Admin{},
		&models.Home{},
		&models.Device{},
		&models.User{},
		&models.UserHome{},
	)
}

// DropAndRecreate 删除并重建所有表
func DropAndRecreate(db *gorm.DB) error {
	Logger.Warning("正在删除并重建所有表，所有数据将丢失")
	tables := []interface{}{
		&models.UserHome{},
		&models.User{},
		&models.Device{},
		&models.Home{},
		&models.Admin{},
		&models.Organization{},
	}
	if err := db.Migrator().DropTable(tables...); err != nil {
		return fmt.Errorf("删除表失败: %w", err)
	}
	return AutoMigrate(db)
}

// Migrate 根据迁移模式执行数据库迁移
func Migrate(db *gorm.DB, mode string) error {
	switch mode {
	case "drop":
		return DropAndRecreate(db)
	default:
		return AutoMigrate(db)
	}
}

// EnsureDefaultAdmin 确保系统中至少有一个组织和一个管理员账户
func EnsureDefaultAdmin(db *gorm.DB, orgName, password string) (*models.Admin, error) {
	var admin models.Admin
	err := db.Where("username = ?", "admin").First(&admin).Error
	if err == nil {
		return &admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var org models.Organization
	if err := db.Where(models.Organization{Name: orgName}).FirstOrCreate(&org).Error; err != nil {
		return nil, fmt.Errorf("创建默认组织失败: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("生成密码哈希失败: %w", err)
	}

	admin = models.Admin{
		Username:       "admin",
		Password:       string(hashed),
		OrganizationID: org.ID,
		Role:           "admin",
		Status:         "active",
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, fmt.Errorf("创建默认管理员失败: %w", err)
	}

	Logger.Info("已创建默认管理员账户 (用户名: admin, 组织: %s)", orgName)
	return &admin, nil
}
