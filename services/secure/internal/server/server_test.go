package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/shroud/internal/credstore"
	"github.com/jredh-dev/shroud/internal/kv"
	"github.com/jredh-dev/shroud/pkg/cce"
	"github.com/jredh-dev/shroud/pkg/envelope"
	"github.com/jredh-dev/shroud/pkg/headercodec"
	"github.com/jredh-dev/shroud/services/secure/internal/audit"
	"github.com/jredh-dev/shroud/services/secure/internal/handlers"
	"github.com/jredh-dev/shroud/services/secure/internal/metrics"
	"github.com/jredh-dev/shroud/services/secure/internal/token"
	"github.com/jredh-dev/shroud/services/secure/internal/transport"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type stack struct {
	srv    *httptest.Server
	cipher *cce.Cipher
	codec  *headercodec.Codec
	sealer *envelope.Sealer
	logs   *syncBuffer
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logs := &syncBuffer{}
	log := zerolog.New(logs)

	cipher := cce.New("secretcce", "abcdefghijklmnopqrstuvwxyz0123456789")
	codec := headercodec.New(cipher)
	sealer, err := envelope.New("yoursecretkey123", "yoursecretiv1234")
	require.NoError(t, err)
	tokens := token.New("test-signing-key", "shroud", time.Hour)
	m := metrics.New()

	s := New(log)
	s.Routes(Deps{
		Layer: transport.New(transport.Config{
			Cipher:   cipher,
			Codec:    codec,
			Sealer:   sealer,
			Excluded: []string{"/health", "/metrics", "/public"},
			Metrics:  m,
			Sink:     audit.NewLogSink(log),
			Logger:   log,
		}),
		Handlers: handlers.New(tokens, log),
		Tokens:   tokens,
		Metrics:  m,
	})

	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, cipher: cipher, codec: codec, sealer: sealer, logs: logs}
}

// send performs a request the way the secure client does.
func (st *stack) send(t *testing.T, method, path string, body any, store *credstore.Store) (*http.Response, string) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		env, err := st.sealer.Wrap(body)
		require.NoError(t, err)
		b, err := json.Marshal(env)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, st.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	ts := time.Now().UnixMilli()
	if store != nil {
		raw, ok, err := store.Raw(context.Background())
		require.NoError(t, err)
		if ok {
			headercodec.Apply(req.Header, st.codec.Encode(raw, ts), ts)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if env, ok := envelope.Parse(b); ok {
		plain, err := st.sealer.Open(env)
		require.NoError(t, err)
		return resp, plain
	}
	return resp, string(b)
}

func TestLoginThenProfile(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	store := credstore.New(kv.NewMemory(), st.cipher, zerolog.Nop())

	resp, body := st.send(t, http.MethodPost, "/auth/login", map[string]string{"username": "alice"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	require.NotEmpty(t, login.Token)
	require.NoError(t, store.Save(ctx, login.Token))

	resp, body = st.send(t, http.MethodGet, "/api/profile", nil, store)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var profile struct {
		OK   bool `json:"ok"`
		User struct {
			Sub  string `json:"sub"`
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &profile))
	assert.True(t, profile.OK)
	assert.Equal(t, "alice", profile.User.Sub)
	assert.Equal(t, "user", profile.User.Role)
}

func TestProfileWithoutCredential(t *testing.T) {
	st := newStack(t)
	resp, body := st.send(t, http.MethodGet, "/api/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized: Missing token"}`, body)
}

func TestProfileRejectsPlainBearer(t *testing.T) {
	st := newStack(t)
	tok, err := token.New("test-signing-key", "shroud", time.Hour).Issue("eve", "")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, st.srv.URL+"/api/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "only header-carried credentials are honored")
}

func TestLoginMissingUsername(t *testing.T) {
	st := newStack(t)
	resp, body := st.send(t, http.MethodPost, "/auth/login", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Username required"}`, body)
}

func TestHealthAndMetricsArePlain(t *testing.T) {
	st := newStack(t)

	resp, err := http.Get(st.srv.URL + "/health")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok"}`, string(b))

	resp, err = http.Get(st.srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "shroud_requests_total")
}

func TestCORSPreflightEchoesHeaders(t *testing.T) {
	st := newStack(t)
	req, err := http.NewRequest(http.MethodOptions, st.srv.URL+"/api/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Access-Control-Request-Headers", "x-request-timestamp, 3-6a6b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "x-request-timestamp, 3-6a6b", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestRequestsAreLogged(t *testing.T) {
	st := newStack(t)
	resp, err := http.Get(st.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, strings.Contains(st.logs.String(), `"message":"request"`))
	assert.Contains(t, st.logs.String(), `"path":"/health"`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := New(zerolog.Nop())
	stopped := false
	s.OnStop(func() { stopped = true })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, stopped)
}
