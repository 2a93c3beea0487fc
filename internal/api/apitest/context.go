package apitest

import "context"

type requestKey struct{}

func withRequest(ctx context.Context, rec Request) context.Context {
	return context.WithValue(ctx, requestKey{}, rec)
}

func requestFrom(ctx context.Context) Request {
	rec, _ := ctx.Value(requestKey{}).(Request)
	return rec
}
