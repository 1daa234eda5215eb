// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request bodies
// and query parameters. Numeric fields accept JSON numbers or numeric
// strings.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budgettracker/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

var errMalformedBody = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidInput)

// budgetRequest is the POST /api/budget body.
type budgetRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// expenseRequest is the POST /api/expenses body.
type expenseRequest struct {
	Item     string          `json:"item"`
	Cost     json.RawMessage `json:"cost"`
	Quantity json.RawMessage `json:"quantity"`
}

// decodeJSON reads one JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return errMalformedBody
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errMalformedBody
	}
	return nil
}

// scalarText returns the text of a JSON number or string. Absent and null
// values report ok=false.
func scalarText(raw json.RawMessage) (text string, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, err
	}
	return n.String(), true, nil
}

// parseMoneyField parses a required amount.
func parseMoneyField(raw json.RawMessage) (core.Money, error) {
	text, ok, err := scalarText(raw)
	if err != nil || !ok {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.ParseMoney(text)
}

// parseQuantityField parses an optional quantity, defaulting to 1 when the
// field is absent. An explicit 0 is rejected later by validation.
func parseQuantityField(raw json.RawMessage) (int, error) {
	text, ok, err := scalarText(raw)
	if err != nil {
		return 0, core.ErrInvalidQuantity
	}
	if !ok {
		return 1, nil
	}
	q, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, core.ErrInvalidQuantity
	}
	return q, nil
}

// parseMonthParam reads the optional month query parameter. An absent value
// returns the zero MonthKey, which the services resolve to the current month.
func parseMonthParam(r *http.Request) (core.MonthKey, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.MonthKey{}, nil
	}
	return core.ParseMonthKey(v)
}
