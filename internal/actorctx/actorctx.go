package actorctx

import "context"

type ctxKey string

const keyUserID ctxKey = "user_id"

// WithUserID records the authenticated caller on a request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}
