package fiora

import (
	"errors"
	"fmt"
)

// SealText 服务端返回的封禁提示，与之完全相等的 ack 表示账号或 IP 被临时封禁
const SealText = "你已经被关进小黑屋中, 请反思后再试"

var (
	// ErrSealed matches any *AckError carrying SealText.
	ErrSealed = errors.New(SealText)
	// ErrNotLoggedIn is returned by operations that need an authenticated profile.
	ErrNotLoggedIn = errors.New("not logged in")
)

// AckError is an application-level failure: the server acknowledged the request
// with a human-readable text instead of a result.
type AckError struct {
	Event   string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Event, e.Message)
}

// Is reports seal errors as ErrSealed.
func (e *AckError) Is(target error) bool {
	return target == ErrSealed && e.Message == SealText
}

// IsSealed 判断错误是否为封禁错误
func IsSealed(err error) bool {
	return errors.Is(err, ErrSealed)
}
