package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeRouteLabel(t *testing.T) {
	if got := sanitizeRouteLabel("POST /v1/call"); got != "POST /v1/call" {
		t.Fatalf("sanitizeRouteLabel = %q, want %q", got, "POST /v1/call")
	}
	if got := sanitizeRouteLabel(""); got != "unmatched" {
		t.Fatalf("sanitizeRouteLabel(\"\") = %q, want unmatched", got)
	}
	if got := sanitizeRouteLabel("GET /x\n\t"); strings.ContainsAny(got, "\n\t") {
		t.Fatalf("sanitizeRouteLabel contains whitespace: %q", got)
	}
}

func TestSanitizeRouteLabel_CapsLength(t *testing.T) {
	long := "/" + strings.Repeat("a", maxRouteLabelLen+50)
	if got := sanitizeRouteLabel(long); len(got) != maxRouteLabelLen {
		t.Fatalf("sanitizeRouteLabel len=%d, want %d", len(got), maxRouteLabelLen)
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /teapot", "418"))

	rec := httptest.NewRecorder()
	Middleware(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /teapot", "418"))
	if after != before+1 {
		t.Fatalf("http_requests_total = %v, want %v", after, before+1)
	}
}

func TestMiddleware_ImplicitOKAndFirstStatusWins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /implicit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /twice", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusInternalServerError)
	})

	okBefore := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /implicit", "200"))
	acceptedBefore := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /twice", "202"))

	h := Middleware(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/implicit", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/twice", nil))

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /implicit", "200")); got != okBefore+1 {
		t.Fatalf("implicit 200 count = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /twice", "202")); got != acceptedBefore+1 {
		t.Fatalf("first status count = %v, want %v", got, acceptedBefore+1)
	}
	if got := testutil.ToFloat64(HTTPRequestsInFlight); got != 0 {
		t.Fatalf("in-flight = %v after requests finished", got)
	}
}
