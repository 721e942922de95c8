package auth

import "context"

// BestEffort runs fn and returns its result. When fn fails (or panics)
// the failure is logged under label and fallback is returned instead.
func BestEffort[T any](ctx context.Context, logger Logger, label string, fn func(context.Context) (T, error), fallback T) (result T) {
	logger = ResolveLogger(logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("best effort call panicked", "call", label, "error", recoverToError(r))
			result = fallback
		}
	}()

	value, err := fn(ctx)
	if err != nil {
		logger.Warn("best effort call failed", "call", label, "error", err)
		return fallback
	}
	return value
}
