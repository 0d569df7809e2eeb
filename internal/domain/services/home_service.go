package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/infrastructure/config"
)

// InterfaceHomeService 住宅服务接口
type InterfaceHomeService interface {
	CreateHome(ctx context.Context, orgID string, input HomeInput) (*HomeResult, error)
	GetHome(ctx context.Context, orgID, homeID string) (*models.Home, error)
	ListHomes(ctx context.Context, orgID string, page, pageSize int) ([]models.Home, int64, error)
	UpdateHome(ctx context.Context, orgID, homeID string, patch HomePatch) (*HomeResult, error)
	DeleteHome(ctx context.Context, orgID, homeID string) (*IndexStatus, error)
	EnableHome(ctx context.Context, orgID, homeID string) (*HomeResult, error)
	DisableHome(ctx context.Context, orgID, homeID string) (*HomeResult, error)
	BulkEnableHomes(ctx context.Context, orgID string, homeIDs []string) (*BulkHomesResult, error)
	BulkDisableHomes(ctx context.Context, orgID string, homeIDs []string) (*BulkHomesResult, error)
	ListHomeDevices(ctx context.Context, orgID, homeID string) (*HomeDevicesView, error)
}

// HomeInput 创建住宅的参数
type HomeInput struct {
	UniqueID string `json:"unique_id" binding:"required"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

// HomePatch 更新住宅的参数，nil 字段保持不变
type HomePatch struct {
	UniqueID *string `json:"unique_id"`
	Name     *string `json:"name"`
	Disabled *bool   `json:"disabled"`
}

// HomeResult 住宅写入结果及索引收敛状态
type HomeResult struct {
	Home  *models.Home `json:"home"`
	Index IndexStatus  `json:"index"`
}

// BulkHomesResult 批量启用/禁用的结果
type BulkHomesResult struct {
	Homes []models.Home `json:"homes"`
	Index IndexStatus   `json:"index"`
}

// HomeDevicesView 从索引读取的住宅设备集合
type HomeDevicesView struct {
	HomeID          string   `json:"home_id"`
	UniqueID        string   `json:"unique_id"`
	Disabled        bool     `json:"disabled"`
	DeviceIDs       []string `json:"device_ids"`
	DeviceUniqueIDs []string `json:"device_unique_ids"`
}

// HomeService 提供住宅相关的服务，所有写入在提交后驱动索引收敛
type HomeService struct {
	DB     *gorm.DB
	Config *config.Config
	Engine *index.Engine
	Locker *index.KeyedLocker
}

// NewHomeService 创建一个新的住宅服务
func NewHomeService(db *gorm.DB, cfg *config.Config, engine *index.Engine, locker *index.KeyedLocker) InterfaceHomeService {
	return &HomeService{
		DB:     db,
		Config: cfg,
		Engine: engine,
		Locker: locker,
	}
}

// 1 CreateHome 创建住宅
func (s *HomeService) CreateHome(ctx context.Context, orgID string, input HomeInput) (*HomeResult, error) {
	uniqueID := strings.TrimSpace(input.UniqueID)
	if uniqueID == "" {
		return nil, fmt.Errorf("%w: unique_id 不能为空", ErrInvalidArgument)
	}

	unlock := s.Locker.Lock(index.UniqueKeyLock(uniqueID))
	defer unlock()

	home := &models.Home{
		UniqueID:       uniqueID,
		OrganizationID: orgID,
		Name:           input.Name,
		Disabled:       input.Disabled,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkHomeUniqueID(tx, uniqueID, ""); err != nil {
			return err
		}
		return tx.Create(home).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	status := indexStatusOf(s.Engine.OnHomeCreated(ctx, snapshotOf(home)))
	return &HomeResult{Home: home, Index: status}, nil
}

// 2 GetHome 获取住宅详情（包含设备）
func (s *HomeService) GetHome(ctx context.Context, orgID, homeID string) (*models.Home, error) {
	home, err := loadHome(s.DB.WithContext(ctx), orgID, homeID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Where("home_id = ?", home.ID).Order("unique_id").Find(&home.Devices).Error; err != nil {
		return nil, err
	}
	return home, nil
}

// 3 ListHomes 分页获取组织内的住宅
func (s *HomeService) ListHomes(ctx context.Context, orgID string, page, pageSize int) ([]models.Home, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var homes []models.Home
	var total int64

	query := s.DB.WithContext(ctx).Model(&models.Home{}).Where("organization_id = ?", orgID)

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Order("unique_id").Offset(offset).Limit(pageSize).Find(&homes).Error; err != nil {
		return nil, 0, err
	}

	return homes, total, nil
}

// 4 UpdateHome 更新住宅（改名、启用、禁用），读取前后快照并收敛索引
func (s *HomeService) UpdateHome(ctx context.Context, orgID, homeID string, patch HomePatch) (*HomeResult, error) {
	unlock := s.Locker.Lock(homeID)
	defer unlock()

	// 旧标识在提交后才从索引删除，新标识随后写入，两者都要锁到收敛结束
	var renameTo []string
	if patch.UniqueID != nil {
		renameTo = append(renameTo, strings.TrimSpace(*patch.UniqueID))
	}
	unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, []string{homeID}, renameTo...)
	if err != nil {
		return nil, err
	}
	defer unlockKeys()

	var previous index.HomeSnapshot
	var hc index.HomeContext
	var home *models.Home

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		home, err = loadHome(tx, orgID, homeID)
		if err != nil {
			return err
		}
		previous = snapshotOf(home)

		updates := map[string]interface{}{}
		if patch.UniqueID != nil {
			uniqueID := strings.TrimSpace(*patch.UniqueID)
			if uniqueID == "" {
				return fmt.Errorf("%w: unique_id 不能为空", ErrInvalidArgument)
			}
			if uniqueID != home.UniqueID {
				if err := checkHomeUniqueID(tx, uniqueID, home.ID); err != nil {
					return err
				}
				updates["unique_id"] = uniqueID
			}
		}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Disabled != nil {
			updates["disabled"] = *patch.Disabled
		}

		if len(updates) > 0 {
			if err := tx.Model(home).Updates(updates).Error; err != nil {
				return err
			}
			if err := tx.Where("id = ?", homeID).First(home).Error; err != nil {
				return err
			}
		}

		hc, err = readHomeContext(tx, home)
		return err
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	// 关系写入已提交，索引收敛失败只影响返回的收敛状态
	convErr := s.Engine.OnHomeUpdated(ctx, previous, hc.Home, hc.Devices, hc.UserIDs)
	return &HomeResult{Home: home, Index: indexStatusOf(convErr)}, nil
}

// 5 EnableHome 启用住宅
func (s *HomeService) EnableHome(ctx context.Context, orgID, homeID string) (*HomeResult, error) {
	disabled := false
	return s.UpdateHome(ctx, orgID, homeID, HomePatch{Disabled: &disabled})
}

// 6 DisableHome 禁用住宅，用户关联保留但在索引中不可见
func (s *HomeService) DisableHome(ctx context.Context, orgID, homeID string) (*HomeResult, error) {
	disabled := true
	return s.UpdateHome(ctx, orgID, homeID, HomePatch{Disabled: &disabled})
}

// 7 DeleteHome 删除住宅，设备解除分配，用户关联一并删除
func (s *HomeService) DeleteHome(ctx context.Context, orgID, homeID string) (*IndexStatus, error) {
	unlock := s.Locker.Lock(homeID)
	defer unlock()

	unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, []string{homeID})
	if err != nil {
		return nil, err
	}
	defer unlockKeys()

	var hc index.HomeContext
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		home, err := loadHome(tx, orgID, homeID)
		if err != nil {
			return err
		}
		if hc, err = readHomeContext(tx, home); err != nil {
			return err
		}

		if err := tx.Model(&models.Device{}).Where("home_id = ?", home.ID).Update("home_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("home_id = ?", home.ID).Delete(&models.UserHome{}).Error; err != nil {
			return err
		}
		return tx.Delete(home).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	status := indexStatusOf(s.Engine.OnHomeDeleted(ctx, hc.Home, hc.Devices, hc.UserIDs))
	return &status, nil
}

// 8 BulkEnableHomes 批量启用住宅
func (s *HomeService) BulkEnableHomes(ctx context.Context, orgID string, homeIDs []string) (*BulkHomesResult, error) {
	return s.bulkSetDisabled(ctx, orgID, homeIDs, false)
}

// 9 BulkDisableHomes 批量禁用住宅
func (s *HomeService) BulkDisableHomes(ctx context.Context, orgID string, homeIDs []string) (*BulkHomesResult, error) {
	return s.bulkSetDisabled(ctx, orgID, homeIDs, true)
}

func (s *HomeService) bulkSetDisabled(ctx context.Context, orgID string, homeIDs []string, disabled bool) (*BulkHomesResult, error) {
	ids := uniqueStrings(homeIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: home_ids 不能为空", ErrInvalidArgument)
	}

	unlock := s.Locker.LockMany(ids...)
	defer unlock()

	unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, ids)
	if err != nil {
		return nil, err
	}
	defer unlockKeys()

	var contexts []index.HomeContext
	var homes []models.Home
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		homes, err = loadHomes(tx, orgID, ids)
		if err != nil {
			return err
		}
		// 快照为写入前的状态，引擎据此跳过未发生迁移的住宅
		for i := range homes {
			hc, err := readHomeContext(tx, &homes[i])
			if err != nil {
				return err
			}
			contexts = append(contexts, hc)
		}

		if err := tx.Model(&models.Home{}).Where("id IN ?", ids).Update("disabled", disabled).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Order("id").Find(&homes).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	var convErr error
	if disabled {
		convErr = s.Engine.OnHomesBulkDisabled(ctx, contexts)
	} else {
		convErr = s.Engine.OnHomesBulkEnabled(ctx, contexts)
	}
	return &BulkHomesResult{Homes: homes, Index: indexStatusOf(convErr)}, nil
}

// 10 ListHomeDevices 从索引读取住宅的设备集合，住宅禁用时为空
func (s *HomeService) ListHomeDevices(ctx context.Context, orgID, homeID string) (*HomeDevicesView, error) {
	home, err := loadHome(s.DB.WithContext(ctx), orgID, homeID)
	if err != nil {
		return nil, err
	}

	deviceIDs, err := s.Engine.HomeDevices(ctx, home.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	uniqueIDs, err := s.Engine.HomeDeviceUniqueIDs(ctx, home.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	return &HomeDevicesView{
		HomeID:          home.ID,
		UniqueID:        home.UniqueID,
		Disabled:        home.Disabled,
		DeviceIDs:       deviceIDs,
		DeviceUniqueIDs: uniqueIDs,
	}, nil
}

// checkHomeUniqueID 校验 unique_id 未被其他住宅占用
func checkHomeUniqueID(tx *gorm.DB, uniqueID, exceptID string) error {
	query := tx.Model(&models.Home{}).Where("unique_id = ?", uniqueID)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: 住宅标识 %s 已存在", ErrRelationalConflict, uniqueID)
	}
	return nil
}
