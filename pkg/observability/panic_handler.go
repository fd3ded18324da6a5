package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic in a background job and logs it with
// the stack. It must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "rate window sweep")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   fmt.Sprint(r),
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
	}
}
