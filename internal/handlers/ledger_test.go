package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"bank-ledger/internal/models"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/services"
)

func newRequestCtx(method, uri, body string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

type testLedger struct {
	repo    *repository.AccountRepository
	handler fasthttp.RequestHandler
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()

	repo := repository.NewAccountRepository(t.TempDir(), repository.DefaultFileTemplate)
	_, err := repo.Initialize(context.Background(), 1, 1000)
	require.NoError(t, err)

	h := NewLedgerHandler(services.NewLedgerService(repo))
	h.now = func() time.Time { return time.Date(2024, 1, 17, 2, 34, 41, 217753000, time.UTC) }

	return &testLedger{repo: repo, handler: h.Router()}
}

func (l *testLedger) do(method, uri, body string) *fasthttp.RequestCtx {
	ctx := newRequestCtx(method, uri, body)
	l.handler(ctx)
	return ctx
}

func (l *testLedger) post(t *testing.T, id int, valor int64, tipo, descricao string) *fasthttp.RequestCtx {
	t.Helper()
	body := fmt.Sprintf(`{"valor": %d, "tipo": %q, "descricao": %q}`, valor, tipo, descricao)
	return l.do(fasthttp.MethodPost, fmt.Sprintf("/clientes/%d/transacoes", id), body)
}

func (l *testLedger) statement(t *testing.T, id int) models.StatementResponse {
	t.Helper()
	ctx := l.do(fasthttp.MethodGet, fmt.Sprintf("/clientes/%d/extrato", id), "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp models.StatementResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return resp
}

func messageOf(t *testing.T, ctx *fasthttp.RequestCtx) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body["message"]
}

func TestLedgerHandler(t *testing.T) {
	t.Run("EmptyStatement", func(t *testing.T) {
		ledger := newTestLedger(t)

		ctx := ledger.do(fasthttp.MethodGet, "/clientes/1/extrato", "")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
		assert.JSONEq(t,
			`{"saldo":{"total":0,"data_extrato":"2024-01-17T02:34:41.217753Z","limite":1000},"ultimas_transacoes":[]}`,
			string(ctx.Response.Body()))
	})

	t.Run("TransactionScenario", func(t *testing.T) {
		ledger := newTestLedger(t)

		ctx := ledger.post(t, 1, 1000, "d", "all in")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"limite":1000,"saldo":-1000}`, string(ctx.Response.Body()))

		ctx = ledger.post(t, 1, 1, "d", "one more")
		assert.Equal(t, fasthttp.StatusUnprocessableEntity, ctx.Response.StatusCode())
		assert.Equal(t, "Unprocessable Entity", messageOf(t, ctx))

		ctx = ledger.post(t, 1, 500, "c", "refund")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"limite":1000,"saldo":-500}`, string(ctx.Response.Body()))

		statement := ledger.statement(t, 1)
		assert.EqualValues(t, -500, statement.Balance.Total)
		require.Len(t, statement.RecentTransactions, 2)
		assert.Equal(t, "refund", statement.RecentTransactions[0].Description)
		assert.Equal(t, "c", statement.RecentTransactions[0].Kind)
		assert.Equal(t, "all in", statement.RecentTransactions[1].Description)
		assert.EqualValues(t, 1000, statement.RecentTransactions[1].Amount)
		assert.NotEmpty(t, statement.RecentTransactions[1].OccurredAt)
	})

	t.Run("ElevenCredits", func(t *testing.T) {
		ledger := newTestLedger(t)

		for i := 1; i <= 11; i++ {
			ctx := ledger.post(t, 1, 1, "c", fmt.Sprintf("#%d", i))
			require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		}

		statement := ledger.statement(t, 1)
		assert.EqualValues(t, 11, statement.Balance.Total)
		require.Len(t, statement.RecentTransactions, models.HistoryCapacity)
		for i, tx := range statement.RecentTransactions {
			assert.Equal(t, fmt.Sprintf("#%d", 11-i), tx.Description)
		}
	})

	t.Run("InvalidBodyLeavesLedgerUnchanged", func(t *testing.T) {
		ledger := newTestLedger(t)
		require.Equal(t, fasthttp.StatusOK, ledger.post(t, 1, 10, "c", "seed").Response.StatusCode())

		for _, body := range []string{
			`{"valor": 1, "tipo": "x", "descricao": "bad"}`,
			`{"valor": 1.2, "tipo": "c", "descricao": "bad"}`,
			`{"valor": 1, "tipo": "c", "descricao": "much too long"}`,
			`not json`,
			`{"valor": 1, "tipo": "c", "descricao": "x"} trailing garbage`,
		} {
			ctx := ledger.do(fasthttp.MethodPost, "/clientes/1/transacoes", body)
			assert.Equal(t, fasthttp.StatusUnprocessableEntity, ctx.Response.StatusCode(), body)
		}

		account, err := ledger.repo.GetByID(context.Background(), 1)
		require.NoError(t, err)
		assert.EqualValues(t, 10, account.Balance)
		assert.EqualValues(t, 1, account.TransactionCount)
	})

	t.Run("NotFound", func(t *testing.T) {
		ledger := newTestLedger(t)

		cases := []struct{ method, uri, body string }{
			{fasthttp.MethodGet, "/clientes/6/extrato", ""},
			{fasthttp.MethodGet, "/clientes/x/extrato", ""},
			{fasthttp.MethodGet, "/clientes/1/transacoes", ""},
			{fasthttp.MethodGet, "/", ""},
			{fasthttp.MethodPost, "/clientes/6/transacoes", `{"valor":1,"tipo":"c","descricao":"x"}`},
			{fasthttp.MethodPost, "/clientes/1/extrato", `{"valor":1,"tipo":"c","descricao":"x"}`},
			{fasthttp.MethodPost, "/clientes/1a/transacoes", `{"valor":1,"tipo":"c","descricao":"x"}`},
			{fasthttp.MethodGet, "/clientes//1/extrato", ""},
			{fasthttp.MethodGet, "/clientes/%31/extrato", ""},
			{fasthttp.MethodGet, "/clientes/2/../1/extrato", ""},
			{fasthttp.MethodGet, "/clientes/1/./extrato", ""},
			{fasthttp.MethodPost, "/clientes/1/transacoes/", `{"valor":1,"tipo":"c","descricao":"x"}`},
		}
		for _, tc := range cases {
			ctx := ledger.do(tc.method, tc.uri, tc.body)
			assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode(), tc.method+" "+tc.uri)
			assert.Equal(t, "User Not Found", messageOf(t, ctx))
		}
	})

	t.Run("QueryStringIgnored", func(t *testing.T) {
		ledger := newTestLedger(t)

		ctx := ledger.do(fasthttp.MethodGet, "/clientes/1/extrato?cache=no", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		ledger := newTestLedger(t)

		for _, method := range []string{fasthttp.MethodPut, fasthttp.MethodDelete, fasthttp.MethodPatch, fasthttp.MethodHead} {
			ctx := ledger.do(method, "/clientes/1/extrato", "")
			assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode(), method)
		}
	})

	t.Run("CorruptRecordIsNotFound", func(t *testing.T) {
		dir := t.TempDir()
		repo := repository.NewAccountRepository(dir, repository.DefaultFileTemplate)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "account-2.bin"), []byte("junk"), 0o644))
		handler := NewLedgerHandler(services.NewLedgerService(repo)).Router()

		ctx := newRequestCtx(fasthttp.MethodGet, "/clientes/2/extrato", "")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})

	t.Run("StoreFailureIsInternalError", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(root, nil, 0o644))
		repo := repository.NewAccountRepository(root, repository.DefaultFileTemplate)
		handler := NewLedgerHandler(services.NewLedgerService(repo)).Router()

		ctx := newRequestCtx(fasthttp.MethodPost, "/clientes/1/transacoes", `{"valor":1,"tipo":"c","descricao":"x"}`)
		handler(ctx)
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
		assert.Equal(t, "Internal Server Error", messageOf(t, ctx))
		assert.NotContains(t, string(ctx.Response.Body()), root)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fasthttp.StatusOK, StatusFor(nil))
	assert.Equal(t, fasthttp.StatusNotFound, StatusFor(repository.ErrAccountNotFound))
	assert.Equal(t, fasthttp.StatusNotFound, StatusFor(fmt.Errorf("wrapped: %w", repository.ErrCorruptRecord)))
	assert.Equal(t, fasthttp.StatusUnprocessableEntity, StatusFor(repository.ErrLimitExceeded))
	assert.Equal(t, fasthttp.StatusUnprocessableEntity, StatusFor(repository.ErrInvalidTransactionKind))
	assert.Equal(t, fasthttp.StatusUnprocessableEntity, StatusFor(ErrUnprocessable))
	assert.Equal(t, fasthttp.StatusInternalServerError, StatusFor(repository.ErrStoreUnavailable))
	assert.Equal(t, fasthttp.StatusInternalServerError, StatusFor(context.DeadlineExceeded))
}
