package fetch

import (
	"errors"
	"fmt"
)

// ErrFetchFailed 是所有取数失败的公共哨兵，可通过 errors.Is 匹配。
var ErrFetchFailed = errors.New("fetch failed")

// Origin 标识内容来源。
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Error 记录失败的来源与定位信息，并保留底层原因。
type Error struct {
	Origin   Origin
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s fetch %s: %v", e.Origin, e.Location, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 *Error 始终匹配 ErrFetchFailed。
func (e *Error) Is(target error) bool {
	return target == ErrFetchFailed
}

func newError(origin Origin, location string, err error) error {
	return &Error{Origin: origin, Location: location, Err: err}
}
