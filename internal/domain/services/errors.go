package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smarthome-index-service/internal/domain/index"
)

var (
	// ErrAccessDenied 引用了调用方组织之外的实体
	ErrAccessDenied = errors.New("无权访问其他组织的资源")
	// ErrNotFound 引用的住宅、设备或用户不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrRelationalConflict 写入违反唯一约束或外键约束
	ErrRelationalConflict = errors.New("关系数据冲突")
	// ErrInvalidArgument 请求参数不合法
	ErrInvalidArgument = errors.New("参数无效")
	// ErrIndexUnavailable 读取索引缓存失败
	ErrIndexUnavailable = errors.New("索引缓存不可读")
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("用户名或密码错误")
)

// translateDBError 把 gorm 错误映射为服务层错误
func translateDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrRelationalConflict, err)
	default:
		return err
	}
}

// IndexStatus 关系写入提交后索引收敛的结果。收敛失败不影响写入本身的成功
type IndexStatus struct {
	Converged  bool     `json:"converged"`
	FailedKeys []string `json:"failed_keys,omitempty"`
}

func indexStatusOf(err error) IndexStatus {
	if err == nil {
		return IndexStatus{Converged: true}
	}
	return IndexStatus{Converged: false, FailedKeys: failedKeys(err)}
}

// failedKeys 收集错误树中所有收敛失败涉及的键
func failedKeys(err error) []string {
	switch e := err.(type) {
	case *index.ConvergenceError:
		return e.Keys()
	case interface{ Unwrap() []error }:
		var keys []string
		for _, inner := range e.Unwrap() {
			keys = append(keys, failedKeys(inner)...)
		}
		return keys
	}
	return nil
}
