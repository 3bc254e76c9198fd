package services

import "context"

type contextKey int

const (
	itemIDKey contextKey = iota
	stageKey
	triggerKey
	requestIDKey
)

// Zero values are never stored: a blank stage or item id 0 leaves ctx as is.
func withValue[T comparable](ctx context.Context, key contextKey, value T) context.Context {
	var zero T
	if value == zero {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf[T comparable](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	value, ok := ctx.Value(key).(T)
	return value, ok && value != zero
}

// WithItemID annotates ctx with the content item being processed.
func WithItemID(ctx context.Context, id int64) context.Context {
	return withValue(ctx, itemIDKey, id)
}

func ItemIDFromContext(ctx context.Context) (int64, bool) {
	return valueOf[int64](ctx, itemIDKey)
}

// WithStage annotates ctx with the pipeline step name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, stageKey)
}

// WithTrigger records what started the run: schedule, manual or api.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return withValue(ctx, triggerKey, trigger)
}

func TriggerFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, triggerKey)
}

// WithRequestID annotates ctx with a run or HTTP request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return valueOf[string](ctx, requestIDKey)
}
