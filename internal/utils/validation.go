package utils

import (
	"fmt"
	"regexp"

	"github.com/bytedance/sonic"
)

// Size limits (in bytes)
const (
	MaxPayloadSize  = 256 * 1024 // single message payload
	MaxTypeLength   = 64
	MaxPayloadDepth = 20
)

// TypePattern allows alphanumeric, dots, hyphens and underscores
var TypePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data any, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data any, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidatePayload checks a decoded message payload's encoded size and depth
func ValidatePayload(payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload is not serializable: %w", err)
	}
	if err := NewJSONSizeValidator(MaxPayloadSize).ValidateSize(data); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := ValidateJSONDepth(payload, MaxPayloadDepth); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}

// ValidateMessageType checks a message type name
func ValidateMessageType(msgType string) error {
	if msgType == "" {
		return fmt.Errorf("type is required")
	}
	if len(msgType) > MaxTypeLength {
		return fmt.Errorf("type exceeds %d characters", MaxTypeLength)
	}
	if !TypePattern.MatchString(msgType) {
		return fmt.Errorf("type %q contains invalid characters", msgType)
	}
	return nil
}
