// Package task defines the units of work that travel through the task queue.
package task

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Task is anything that can be published to a task stream named after its type.
type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue encodes a task as compact JSON, leaving URLs and Hebrew text unescaped.
func DefaultTaskValue(task any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(task); err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func UnmarshalTask[T Task](data []byte) (T, error) {
	var t T
	err := json.Unmarshal(data, &t)
	return t, err
}
