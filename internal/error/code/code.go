package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusUnauthorized - 401: 未授权.
	StatusUnauthorized = 401
	// StatusForbidden - 403: 禁止访问.
	StatusForbidden = 403
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusConflict - 409: 数据冲突.
	StatusConflict = 409
	// StatusTooManyRequests - 429: 请求过多.
	StatusTooManyRequests = 429
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
	// StatusServiceUnavailable - 503: 依赖服务不可用.
	StatusServiceUnavailable = 503
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
	// ErrTokenInvalid - 401: 令牌无效.
	ErrTokenInvalid
	// ErrTooManyRequests - 429: 请求频率过高.
	ErrTooManyRequests
	// ErrAccessDenied - 403: 无权访问其他组织的资源.
	ErrAccessDenied
)

// 用户相关错误码 (101xxx).
const (
	// ErrUserNotFound - 404: 用户不存在.
	ErrUserNotFound int = iota + 101000
	// ErrUserAlreadyExist - 400: 用户已存在.
	ErrUserAlreadyExist
	// ErrUserPasswordIncorrect - 401: 用户密码错误.
	ErrUserPasswordIncorrect
)

// 设备相关错误码 (102xxx).
const (
	// ErrDeviceNotFound - 404: 设备不存在.
	ErrDeviceNotFound int = iota + 102000
	// ErrDeviceAlreadyExist - 409: 设备已存在.
	ErrDeviceAlreadyExist
)

// 住宅相关错误码 (103xxx).
const (
	// ErrHomeNotFound - 404: 住宅不存在.
	ErrHomeNotFound int = iota + 103000
	// ErrHomeAlreadyExist - 409: 住宅标识已存在.
	ErrHomeAlreadyExist
)

// 关联相关错误码 (104xxx).
const (
	// ErrLinkInvalid - 400: 关联参数无效.
	ErrLinkInvalid int = iota + 104000
)

// 数据库相关错误码 (105xxx).
const (
	// ErrDatabase - 500: 数据库错误.
	ErrDatabase int = iota + 105000
	// ErrRecordNotFound - 404: 记录不存在.
	ErrRecordNotFound
	// ErrConflict - 409: 违反唯一约束或外键约束.
	ErrConflict
)

// 索引相关错误码 (106xxx).
const (
	// ErrIndexUnavailable - 503: 索引缓存不可读.
	ErrIndexUnavailable int = iota + 106000
)

// 基础设施相关错误码 (109xxx).
const (
	// ErrConnectionFailed - 503: 连接失败.
	ErrConnectionFailed int = iota + 109000
)
