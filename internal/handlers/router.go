package handlers

import (
	"bytes"

	"github.com/valyala/fasthttp"
)

// Router dispatches by method first, then by path shape: every GET is a
// statement lookup, every POST a transaction, anything else is refused.
func (h *LedgerHandler) Router() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var want Route
		var next fasthttp.RequestHandler

		switch {
		case ctx.IsGet():
			want, next = RouteStatement, h.Statement
		case ctx.IsPost():
			want, next = RouteTransaction, h.CreateTransaction
		default:
			writeStatus(ctx, fasthttp.StatusMethodNotAllowed)
			return
		}

		route, accountID, err := MatchPath(requestPath(ctx))
		if err != nil || route != want {
			writeStatus(ctx, fasthttp.StatusNotFound)
			return
		}

		ctx.SetUserValue(accountIDKey, accountID)
		next(ctx)
	}
}

// requestPath is the path exactly as sent, without fasthttp's decoding and
// normalization, so "//", "%31" and ".." never collapse into a valid route.
func requestPath(ctx *fasthttp.RequestCtx) string {
	path := ctx.Request.URI().PathOriginal()
	if i := bytes.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return string(path)
}
