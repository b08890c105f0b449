// Package utils validates admin API input before it becomes a bridge message.
//
// Validation:
//   - Payload encoded size and nesting depth
//   - Message type names
//
// Example Usage:
//
//	if err := utils.ValidatePayload(body.Payload); err != nil {
//		return err
//	}
package utils
