package completion

import (
	"errors"
	"fmt"
)

// TransportError 表示调用补全接口时的网络或 HTTP 层失败。
// StatusCode 为 0 表示没有收到任何响应。
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Message != "" {
			return fmt.Sprintf("completion transport failed: %s", e.Message)
		}
		return fmt.Sprintf("completion transport failed: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion endpoint returned status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError 表示响应成功但内容不符合约定的格式。
type ProtocolError struct {
	Body string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed completion response: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransport 判断 err 链中是否有 TransportError。
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol 判断 err 链中是否有 ProtocolError。
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
