package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

type winnerBody struct {
	WinnerID string `json:"winner_id" validate:"required,uuid"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"winner_id":"nope"}`))
	var body winnerBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["winner_id"] != "must be a valid uuid" {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"winner_id":"`+uuid.NewString()+`","amount":"5"}`))
	var body winnerBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	valid := `{"winner_id":"` + uuid.NewString() + `"}`
	cases := map[string]struct {
		body    string
		message string
	}{
		"empty":         {"", "request body required"},
		"trailing data": {valid + valid, "request body must hold a single JSON object"},
		"syntax":        {`{"winner_id":,}`, "malformed JSON"},
		"truncated":     {`{"winner_id":`, "malformed JSON"},
		"cut mid value": {`{"winner_id":"abc`, "malformed JSON"},
		"wrong type":    {`{"winner_id":7}`, "validation failed"},
		"oversized":     {`{"winner_id":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "request body exceeds 65536 bytes"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var body winnerBody
			err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := pkgerrors.As(err).Message(); got != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, got)
			}
		})
	}
}

func TestDecodeJSONBodyAcceptsValidBody(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"winner_id":"`+id+`"}`))
	var body winnerBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.WinnerID != id {
		t.Fatalf("expected %s, got %s", id, body.WinnerID)
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	cases := map[string]bool{
		id.String():       true,
		"not-a-uuid":      false,
		uuid.Nil.String(): false,
		"":                false,
	}
	for raw, ok := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("eventId", raw)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

		got, err := PathUUID(req, "eventId")
		if ok && (err != nil || got != id) {
			t.Fatalf("%q: expected %s, got %s (%v)", raw, id, got, err)
		}
		if !ok && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%q: expected validation error, got %v", raw, err)
		}
	}
}

func TestPageParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	params, err := PageParams(req, 20)
	if err != nil || params.Limit != 20 || params.Cursor != "" {
		t.Fatalf("unexpected defaults %+v err=%v", params, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := PageParams(req, 20); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for oversized limit, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?cursor=%25%25", nil)
	if _, err := PageParams(req, 20); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad cursor, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if params, _ := PageParams(req, 0); params.Limit != 25 {
		t.Fatalf("expected package default limit, got %d", params.Limit)
	}
}
