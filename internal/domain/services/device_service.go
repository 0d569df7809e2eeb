package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/domain/models"
	"smarthome-index-service/internal/infrastructure/config"
)

// InterfaceDeviceService 设备服务接口
type InterfaceDeviceService interface {
	CreateDevice(ctx context.Context, orgID string, input DeviceInput) (*DeviceResult, error)
	GetDevice(ctx context.Context, orgID, deviceID string) (*models.Device, error)
	AttachDevice(ctx context.Context, orgID, homeID, deviceID string) (*DeviceResult, error)
	DetachDevice(ctx context.Context, orgID, deviceID string) (*DeviceResult, error)
	DeleteDevice(ctx context.Context, orgID, deviceID string) (*IndexStatus, error)
}

// DeviceInput 创建设备的参数，HomeID 为空表示暂不分配
type DeviceInput struct {
	UniqueID string  `json:"unique_id" binding:"required"`
	Name     string  `json:"name"`
	HomeID   *string `json:"home_id"`
}

// DeviceResult 设备写入结果及索引收敛状态
type DeviceResult struct {
	Device *models.Device `json:"device"`
	Index  IndexStatus    `json:"index"`
}

// DeviceService 提供设备挂载相关的服务
type DeviceService struct {
	DB     *gorm.DB
	Config *config.Config
	Engine *index.Engine
	Locker *index.KeyedLocker
}

// NewDeviceService 创建一个新的设备服务
func NewDeviceService(db *gorm.DB, cfg *config.Config, engine *index.Engine, locker *index.KeyedLocker) InterfaceDeviceService {
	return &DeviceService{
		DB:     db,
		Config: cfg,
		Engine: engine,
		Locker: locker,
	}
}

// errDeviceMoved 读取设备归属之后、加锁之前设备被并发移动
var errDeviceMoved = errors.New("device moved concurrently")

// moveAttempts 设备并发移动时的重试次数
const moveAttempts = 3

// 1 CreateDevice 创建设备，可直接挂载到住宅
func (s *DeviceService) CreateDevice(ctx context.Context, orgID string, input DeviceInput) (*DeviceResult, error) {
	uniqueID := strings.TrimSpace(input.UniqueID)
	if uniqueID == "" {
		return nil, fmt.Errorf("%w: unique_id 不能为空", ErrInvalidArgument)
	}

	device := &models.Device{
		UniqueID:       uniqueID,
		OrganizationID: orgID,
		Name:           input.Name,
	}
	if input.HomeID != nil && *input.HomeID != "" {
		homeID := *input.HomeID
		device.HomeID = &homeID
		unlock := s.Locker.Lock(homeID)
		defer unlock()

		unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, []string{homeID})
		if err != nil {
			return nil, err
		}
		defer unlockKeys()
	}

	var home *models.Home
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if device.HomeID != nil {
			var err error
			if home, err = loadHome(tx, orgID, *device.HomeID); err != nil {
				return err
			}
		}
		if err := checkDeviceUniqueID(tx, uniqueID); err != nil {
			return err
		}
		return tx.Create(device).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	status := IndexStatus{Converged: true}
	if home != nil {
		status = indexStatusOf(s.Engine.OnDeviceAttached(ctx, snapshotOf(home), deviceRef(device)))
	}
	return &DeviceResult{Device: device, Index: status}, nil
}

// 2 GetDevice 获取设备详情
func (s *DeviceService) GetDevice(ctx context.Context, orgID, deviceID string) (*models.Device, error) {
	return loadDevice(s.DB.WithContext(ctx), orgID, deviceID)
}

// 3 AttachDevice 把设备挂载到住宅，设备原先属于其他住宅时一并从原住宅的索引中移除
func (s *DeviceService) AttachDevice(ctx context.Context, orgID, homeID, deviceID string) (*DeviceResult, error) {
	return s.move(ctx, orgID, deviceID, &homeID)
}

// 4 DetachDevice 解除设备与住宅的挂载
func (s *DeviceService) DetachDevice(ctx context.Context, orgID, deviceID string) (*DeviceResult, error) {
	return s.move(ctx, orgID, deviceID, nil)
}

// 5 DeleteDevice 删除设备
func (s *DeviceService) DeleteDevice(ctx context.Context, orgID, deviceID string) (*IndexStatus, error) {
	for attempt := 0; attempt < moveAttempts; attempt++ {
		current, err := s.currentHome(ctx, orgID, deviceID)
		if err != nil {
			return nil, err
		}

		status, err := s.deleteLocked(ctx, orgID, deviceID, current)
		if errors.Is(err, errDeviceMoved) {
			continue
		}
		return status, err
	}
	return nil, fmt.Errorf("%w: 设备正在被并发修改", ErrRelationalConflict)
}

func (s *DeviceService) deleteLocked(ctx context.Context, orgID, deviceID string, current *string) (*IndexStatus, error) {
	if current != nil {
		unlock := s.Locker.Lock(*current)
		defer unlock()

		unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, []string{*current})
		if err != nil {
			return nil, err
		}
		defer unlockKeys()
	}

	var device *models.Device
	var home *models.Home
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if device, err = loadDevice(tx, orgID, deviceID); err != nil {
			return err
		}
		if !sameHome(device.HomeID, current) {
			return errDeviceMoved
		}
		if current != nil {
			home = &models.Home{}
			if err := tx.Where("id = ?", *current).First(home).Error; err != nil {
				return err
			}
		}
		return tx.Delete(device).Error
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	status := IndexStatus{Converged: true}
	if home != nil {
		status = indexStatusOf(s.Engine.OnDeviceDetached(ctx, snapshotOf(home), deviceRef(device)))
	}
	return &status, nil
}

// move 修改设备归属。先无锁读取当前归属，再锁定新旧住宅并在事务内复核
func (s *DeviceService) move(ctx context.Context, orgID, deviceID string, target *string) (*DeviceResult, error) {
	for attempt := 0; attempt < moveAttempts; attempt++ {
		current, err := s.currentHome(ctx, orgID, deviceID)
		if err != nil {
			return nil, err
		}

		result, err := s.moveLocked(ctx, orgID, deviceID, current, target)
		if errors.Is(err, errDeviceMoved) {
			continue
		}
		return result, err
	}
	return nil, fmt.Errorf("%w: 设备正在被并发修改", ErrRelationalConflict)
}

func (s *DeviceService) moveLocked(ctx context.Context, orgID, deviceID string, current, target *string) (*DeviceResult, error) {
	var keys []string
	if current != nil {
		keys = append(keys, *current)
	}
	if target != nil {
		keys = append(keys, *target)
	}
	unlock := s.Locker.LockMany(keys...)
	defer unlock()

	unlockKeys, err := lockUniqueKeys(ctx, s.DB, s.Locker, keys)
	if err != nil {
		return nil, err
	}
	defer unlockKeys()

	var device *models.Device
	var from, to *models.Home
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if device, err = loadDevice(tx, orgID, deviceID); err != nil {
			return err
		}
		if !sameHome(device.HomeID, current) {
			return errDeviceMoved
		}
		if target != nil {
			if to, err = loadHome(tx, orgID, *target); err != nil {
				return err
			}
		}
		if sameHome(current, target) {
			// 归属未变，仍按当前状态收敛一次
			return nil
		}
		if current != nil {
			from = &models.Home{}
			if err := tx.Where("id = ?", *current).First(from).Error; err != nil {
				return err
			}
		}

		var value interface{}
		if target != nil {
			value = *target
		}
		if err := tx.Model(device).Update("home_id", value).Error; err != nil {
			return err
		}
		device.HomeID = target
		return nil
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	ref := deviceRef(device)
	var failures []error
	if from != nil {
		if err := s.Engine.OnDeviceDetached(ctx, snapshotOf(from), ref); err != nil {
			failures = append(failures, err)
		}
	}
	if to != nil {
		if err := s.Engine.OnDeviceAttached(ctx, snapshotOf(to), ref); err != nil {
			failures = append(failures, err)
		}
	}
	return &DeviceResult{Device: device, Index: indexStatusOf(errors.Join(failures...))}, nil
}

// currentHome 无锁读取设备当前归属的住宅
func (s *DeviceService) currentHome(ctx context.Context, orgID, deviceID string) (*string, error) {
	device, err := loadDevice(s.DB.WithContext(ctx), orgID, deviceID)
	if err != nil {
		return nil, err
	}
	return device.HomeID, nil
}

// checkDeviceUniqueID 校验设备 unique_id 未被占用
func checkDeviceUniqueID(tx *gorm.DB, uniqueID string) error {
	var count int64
	if err := tx.Model(&models.Device{}).Where("unique_id = ?", uniqueID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: 设备标识 %s 已存在", ErrRelationalConflict, uniqueID)
	}
	return nil
}

func deviceRef(device *models.Device) index.DeviceRef {
	return index.DeviceRef{ID: device.ID, UniqueID: device.UniqueID}
}

func sameHome(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
