package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"bank-ledger/internal/models"
)

var (
	ErrUnknownRoute  = errors.New("unknown route")
	ErrUnprocessable = errors.New("unprocessable transaction")
)

const (
	pathPrefix        = "/clientes/"
	statementSuffix   = "extrato"
	transactionSuffix = "transacoes"

	maxDescriptionLength = 10
)

// Route identifies which of the two documented endpoints a path names.
type Route int

const (
	RouteStatement Route = iota + 1
	RouteTransaction
)

// MatchPath accepts exactly /clientes/{id}/extrato and /clientes/{id}/transacoes
// where id is a run of ASCII digits naming a positive integer.
func MatchPath(path string) (Route, int64, error) {
	rest, ok := strings.CutPrefix(path, pathPrefix)
	if !ok {
		return 0, 0, ErrUnknownRoute
	}

	idPart, suffix, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, ErrUnknownRoute
	}

	id, err := parseDigits(idPart)
	if err != nil || id <= 0 {
		return 0, 0, ErrUnknownRoute
	}

	switch suffix {
	case statementSuffix:
		return RouteStatement, id, nil
	case transactionSuffix:
		return RouteTransaction, id, nil
	default:
		return 0, 0, ErrUnknownRoute
	}
}

// DecodeTransactionRequest turns a POST body into a validated transaction.
// The body must be exactly one JSON object. valor must be a plain run of digits, tipo exactly "c" or "d", and descricao
// between 1 and 10 characters.
func DecodeTransactionRequest(body []byte) (models.Transaction, error) {
	var req models.TransactionRequest

	if err := json.Unmarshal(body, &req); err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}

	amount, err := parseDigits(string(req.Valor))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: valor %s", ErrUnprocessable, req.Valor)
	}

	if len(req.Tipo) != 1 || (req.Tipo[0] != models.KindCredit && req.Tipo[0] != models.KindDebit) {
		return models.Transaction{}, fmt.Errorf("%w: tipo %q", ErrUnprocessable, req.Tipo)
	}

	length := utf8.RuneCountInString(req.Descricao)
	if length < 1 || length > maxDescriptionLength {
		return models.Transaction{}, fmt.Errorf("%w: descricao length %d", ErrUnprocessable, length)
	}
	if !utf8.ValidString(req.Descricao) || strings.ContainsRune(req.Descricao, 0) {
		return models.Transaction{}, fmt.Errorf("%w: descricao has invalid characters", ErrUnprocessable)
	}

	return models.Transaction{
		Amount:      amount,
		Kind:        req.Tipo[0],
		Description: req.Descricao,
	}, nil
}

// parseDigits accepts only ASCII digits, so signs, fractions and exponents fail.
func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
