package rabbitmq

import "errors"

var ErrEmptyToolCallID = errors.New("message has no tool_call_id")
