package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/autotune/internal/device"
	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/matmul"
	"github.com/samcharles93/autotune/internal/tune"
	"github.com/samcharles93/autotune/internal/version"
)

type fakeCache struct {
	cleared []string
}

func (f *fakeCache) Clear(name string) (int, error) {
	f.cleared = append(f.cleared, name)
	return 2, nil
}

func newTestServer(cache PersistentCache) (*Server, *echo.Echo) {
	tuner := matmul.NewTuner(
		tune.WithBenchmarker(tune.TimingBenchmarker{Samples: 1}),
		tune.WithLogger(logger.Discard()))
	s := NewServer(Config{
		Tuner:   tuner,
		Device:  device.NewCPU(2),
		Cache:   cache,
		MaxDim:  256,
		Version: version.Info{Version: "test"},
		Logger:  logger.Discard(),
	})
	e := echo.New()
	e.Use(requestID)
	s.Register(e)
	return s, e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestMatmulThenListTuners(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/matmul", `{"m":64,"k":48,"n":32,"seed":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("matmul status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[MatmulResponse](t, rec)
	if resp.Key != "64x64x32" {
		t.Fatalf("key: got %q", resp.Key)
	}
	if resp.State != "hit" || resp.Winner == "" {
		t.Fatalf("state: got %q winner %q", resp.State, resp.Winner)
	}
	if resp.RequestID == "" || rec.Header().Get(echo.HeaderXRequestID) != resp.RequestID {
		t.Fatalf("request id: body %q header %q", resp.RequestID, rec.Header().Get(echo.HeaderXRequestID))
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/tuners", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	list := decodeBody[TunersResponse](t, rec)
	if len(list.Data) != 1 || len(list.Data[0].Entries) != 1 {
		t.Fatalf("list: got %+v", list)
	}
	if list.Data[0].Entries[0].Key != "64x64x32" || list.Data[0].Stats.Autotunes != 1 {
		t.Fatalf("entry: got %+v", list.Data[0])
	}
	if !list.Blocking {
		t.Fatal("expected a blocking tuner")
	}
}

func TestMatmulRejectsBadRequests(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)

	cases := []string{
		`{"m":0,"k":4,"n":4}`,
		`{"m":4,"k":4,"n":257}`,
		`{"m":4,"k":4,"n":4,"extra":1}`,
		`not json`,
	}
	for _, body := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/matmul", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "invalid_request_error") {
			t.Fatalf("%s: body %s", body, rec.Body.String())
		}
	}
}

func TestMatmulInlineOperands(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/matmul", `{"m":2,"k":2,"n":2,"a":[1,2,3,4],"b":[5,6,7,8]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("matmul status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[MatmulResponse](t, rec)
	want := []float32{19, 22, 43, 50}
	if len(resp.C) != len(want) {
		t.Fatalf("c: got %v", resp.C)
	}
	for i := range want {
		if resp.C[i] != want[i] {
			t.Fatalf("c: got %v, want %v", resp.C, want)
		}
	}

	// Random operands do not echo the product.
	rec = doJSON(t, e, http.MethodPost, "/v1/matmul", `{"m":2,"k":2,"n":2}`)
	if got := decodeBody[MatmulResponse](t, rec); got.C != nil {
		t.Fatalf("c: got %v for random operands", got.C)
	}
}

func TestMatmulRejectsBadOperands(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)

	cases := map[string]string{
		"a too short":  `{"m":2,"k":2,"n":2,"a":[1,2,3],"b":[5,6,7,8]}`,
		"b too long":   `{"m":2,"k":2,"n":1,"a":[1,2,3,4],"b":[5,6,7]}`,
		"b is missing": `{"m":2,"k":2,"n":2,"a":[1,2,3,4]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/matmul", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestInvalidRequestErrors(t *testing.T) {
	t.Parallel()
	cause := errors.New("short read")
	err := wrapInvalid(cause, "decode request")
	if !errors.Is(err, ErrInvalidRequest) || !errors.Is(err, cause) {
		t.Fatalf("wrapInvalid(%v) lost its marks", err)
	}
	if err.Error() != "decode request: short read" {
		t.Fatalf("message: %q", err.Error())
	}
	if err := invalidRequestf("m must be %d", 1); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("invalidRequestf is not an invalid request")
	}
	if errors.Is(cause, ErrInvalidRequest) {
		t.Fatal("plain errors must not match ErrInvalidRequest")
	}
}

func TestClearTuners(t *testing.T) {
	t.Parallel()
	cache := &fakeCache{}
	s, e := newTestServer(cache)

	if rec := doJSON(t, e, http.MethodPost, "/v1/matmul", `{"m":8,"k":8,"n":8}`); rec.Code != http.StatusOK {
		t.Fatalf("matmul status: got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodDelete, "/v1/tuners", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status: got %d", rec.Code)
	}
	if got := decodeBody[ClearResponse](t, rec); !got.Cleared || got.PersistedFiles != 0 {
		t.Fatalf("clear: got %+v", got)
	}
	if n := len(s.tuner.Snapshots()); n != 0 {
		t.Fatalf("tuners after clear: %d", n)
	}

	rec = doJSON(t, e, http.MethodDelete, "/v1/tuners?persisted=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear persisted status: got %d", rec.Code)
	}
	if got := decodeBody[ClearResponse](t, rec); got.PersistedFiles != 2 {
		t.Fatalf("clear persisted: got %+v", got)
	}
	if len(cache.cleared) != 1 || cache.cleared[0] != matmul.TunerName {
		t.Fatalf("cache cleared: %v", cache.cleared)
	}
}

func TestClearPersistedWithoutCache(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)
	rec := doJSON(t, e, http.MethodDelete, "/v1/tuners?persisted=true", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestVersionAndRequestIDPassthrough(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("version status: got %d", rec.Code)
	}
	if got := decodeBody[version.Info](t, rec); got.Version != "test" {
		t.Fatalf("version: got %+v", got)
	}
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "abc-123" {
		t.Fatalf("request id: got %q", got)
	}
}
