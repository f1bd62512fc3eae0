package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"bank-ledger/internal/utils"
)

const RequestIDHeader = "X-Request-Id"

// RequestLogger tags every request with an id and logs it on the way in and
// the status on the way out.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		startTime := time.Now()

		requestID := string(ctx.Request.Header.Peek(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.SetUserValue("request_id", requestID)
		ctx.Response.Header.Set(RequestIDHeader, requestID)

		path := string(ctx.Path())
		utils.LogRequest(string(ctx.Method()), path, requestID)

		next(ctx)

		utils.LogResponse(path, ctx.Response.StatusCode(), time.Since(startTime))
	}
}
