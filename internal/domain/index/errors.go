package index

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexConvergence 表示提交后的索引收敛步骤未能完成
var ErrIndexConvergence = errors.New("index convergence failed")

// OpError 单个缓存操作失败
type OpError struct {
	Op     CacheOp
	Family Family
	Key    string
	Member string
	Err    error
}

func (e *OpError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s %s[%s] member %s: %v", e.Op, e.Family, e.Key, e.Member, e.Err)
	}
	return fmt.Sprintf("%s %s[%s]: %v", e.Op, e.Family, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ConvergenceError 汇总一次变更中所有失败的缓存操作，涉及的键处于不确定状态
type ConvergenceError struct {
	Operation string
	Failures  []error
}

func (e *ConvergenceError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %v (%d failed): %s", e.Operation, ErrIndexConvergence, len(e.Failures), strings.Join(parts, "; "))
}

func (e *ConvergenceError) Is(target error) bool {
	return target == ErrIndexConvergence
}

func (e *ConvergenceError) Unwrap() []error {
	return e.Failures
}

// Keys 返回失败操作涉及的键（去重，保持出现顺序）
func (e *ConvergenceError) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, f := range e.Failures {
		var opErr *OpError
		if !errors.As(f, &opErr) {
			continue
		}
		k := string(opErr.Family) + ":" + opErr.Key
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func newConvergenceError(operation string, failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return &ConvergenceError{Operation: operation, Failures: failures}
}
