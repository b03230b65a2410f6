package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/askdb/askdb/internal/nl2sql"
)

type fakeTranslator struct {
	requests []nl2sql.Request
	result   nl2sql.Result
	err      error
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return f.result, nil
}

func TestTranslateEndpointReturnsSQL(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT count(*) FROM customer", Schema: "public"}}
	h := newTestHandler(t, Dependencies{QueryTranslator: translator})

	rr := serve(h, http.MethodPost, "/v1/query/translate", `{"natural_language":"how many customers?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != "SELECT count(*) FROM customer" || body["schema"] != "public" {
		t.Fatalf("body = %#v", body)
	}
	if len(translator.requests) != 1 || translator.requests[0].NaturalLanguage != "how many customers?" {
		t.Fatalf("translator requests = %#v", translator.requests)
	}
}

func TestTranslateEndpointUnresolvable(t *testing.T) {
	h := newTestHandler(t, Dependencies{QueryTranslator: &fakeTranslator{err: nl2sql.ErrUnresolvable}})
	rr := serve(h, http.MethodPost, "/v1/query/translate", `{"natural_language":"what is the meaning of life?"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeBody(t, rr)["message"]; got != "failed to generate a valid SQL query" {
		t.Fatalf("message = %v", got)
	}
}

func TestTranslateEndpointErrors(t *testing.T) {
	h := newTestHandler(t, Dependencies{QueryTranslator: &fakeTranslator{}})
	if rr := serve(h, http.MethodPost, "/v1/query/translate", `{"prompt":"old field"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/query/translate", `{"natural_language":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty status = %d", rr.Code)
	}

	h = newTestHandler(t, Dependencies{QueryTranslator: &fakeTranslator{err: errors.New("model offline")}})
	if rr := serve(h, http.MethodPost, "/v1/query/translate", `{"natural_language":"x"}`); rr.Code != http.StatusBadGateway {
		t.Fatalf("model failure status = %d", rr.Code)
	}

	h = newTestHandler(t, Dependencies{})
	if rr := serve(h, http.MethodPost, "/v1/query/translate", `{"natural_language":"x"}`); rr.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}
}
