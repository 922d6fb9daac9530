package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(Config{APIKey: "test-key", BaseURL: srv.URL, MaxRetries: 1})
	return srv, client
}

func echoTranslations(w http.ResponseWriter, texts []string, prefix string) {
	resp := map[string]interface{}{}
	var items []map[string]string
	for _, t := range texts {
		items = append(items, map[string]string{"text": prefix + t})
	}
	resp["translations"] = items
	json.NewEncoder(w).Encode(resp)
}

func TestTranslatePreservesOrderAndLength(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key test-key" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.Form.Get("target_lang"); got != "PT-BR" {
			t.Errorf("target_lang = %q", got)
		}
		echoTranslations(w, r.Form["text"], "pt:")
	})

	target := language.MustParse("pt-BR")
	out, err := client.Translate(context.Background(), []string{"Hello", "World"}, language.English, target)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := []string{"pt:Hello", "pt:World"}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestTranslateEmptyStringsPassThrough(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if len(r.Form["text"]) != 1 {
			t.Errorf("sent %d texts, want 1", len(r.Form["text"]))
		}
		echoTranslations(w, r.Form["text"], "x:")
	})

	out, err := client.Translate(context.Background(), []string{"", "Oi", "  "}, language.English, language.Portuguese)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out[0] != "" || out[1] != "x:Oi" || out[2] != "  " {
		t.Errorf("out = %q", out)
	}
}

func TestTranslateAuthError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad key"}`, http.StatusForbidden)
	})

	_, err := client.Translate(context.Background(), []string{"x"}, language.English, language.Portuguese)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if authErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d", authErr.Status)
	}
}

func TestTranslateRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		r.ParseForm()
		echoTranslations(w, r.Form["text"], "ok:")
	}))
	defer srv.Close()
	client := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})

	out, err := client.Translate(context.Background(), []string{"x"}, language.English, language.Portuguese)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if out[0] != "ok:x" {
		t.Errorf("out = %q", out)
	}
}

func TestTranslateCountMismatchFails(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		echoTranslations(w, []string{"only-one"}, "")
	})

	_, err := client.Translate(context.Background(), []string{"a", "b"}, language.English, language.Portuguese)
	if err == nil {
		t.Fatal("expected error on count mismatch")
	}
}

func TestMergeBatchesBudgets(t *testing.T) {
	texts := []string{"aaaa", "bbbb", "cccc", "dd"}
	batches := mergeBatches(texts, 10, 9)
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != len(texts) {
		t.Errorf("batches hold %d texts, want %d", total, len(texts))
	}

	// An oversized text travels alone.
	big := mergeBatches([]string{"aa", "xxxxxxxxxxxxxxxxxxxx", "bb"}, 10, 10)
	if len(big) != 3 {
		t.Errorf("len = %d, want 3", len(big))
	}
}

func TestParseLang(t *testing.T) {
	tag, err := ParseLang("PT-BR")
	if err != nil {
		t.Fatalf("ParseLang: %v", err)
	}
	if got := apiCode(tag, true); got != "PT-BR" {
		t.Errorf("apiCode = %q, want PT-BR", got)
	}
	if got := apiCode(language.English, false); got != "EN" {
		t.Errorf("apiCode(en) = %q", got)
	}
	if _, err := ParseLang("not a lang!!"); err == nil {
		t.Error("expected error for invalid code")
	}
}
