package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/logging"
)

type sampleRequest struct {
	Name   string `json:"name" validate:"required,max=5"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"abc","amount":3}`, false},
		{"missing name", `{"amount":3}`, true},
		{"name too long", `{"name":"abcdefg","amount":3}`, true},
		{"zero amount", `{"name":"abc","amount":0}`, true},
		{"malformed", `{"name":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var req sampleRequest
			err := decode(r, &req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decode error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("error kind = %s, want validation", apperr.KindOf(err))
			}
		})
	}
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	logger := logging.New(io.Discard, "error", "text")

	rr := httptest.NewRecorder()
	writeError(rr, logger, errors.New("disk on fire"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(body["error"], "disk") {
		t.Errorf("error = %q, leaked internal text", body["error"])
	}
	if body["kind"] != "internal" {
		t.Errorf("kind = %q, want internal", body["kind"])
	}

	rr = httptest.NewRecorder()
	writeError(rr, logger, apperr.NotFound("voucher %d not found", 7))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if !strings.Contains(rr.Body.String(), "voucher 7 not found") {
		t.Errorf("body = %q, want message", rr.Body.String())
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{"0", 0, true},
		{"-4", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.SetPathValue("id", tt.value)
		got, err := parseIDParam(r)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDParam(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIDParam(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25&bad=x&neg=-3", nil)
	if got := queryInt(r, "limit", 100); got != 25 {
		t.Errorf("limit = %d, want 25", got)
	}
	if got := queryInt(r, "bad", 100); got != 100 {
		t.Errorf("bad = %d, want 100", got)
	}
	if got := queryInt(r, "neg", 100); got != 100 {
		t.Errorf("neg = %d, want 100", got)
	}
}
