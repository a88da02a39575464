package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const requestDataKey ctxKey = "amparo_request_data"

// RequestData is the authenticated identity attached by the auth middleware.
type RequestData struct {
	UserID uuid.UUID
	Role   string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	if rd == nil {
		return ctx
	}
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, _ := ctx.Value(requestDataKey).(*RequestData)
	return rd
}
