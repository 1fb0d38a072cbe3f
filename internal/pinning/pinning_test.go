package pinning_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/pinning"
)

// fakeNode answers add and every liveness call with canned JSON.
func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/v0/add"):
			assert.Equal(t, "true", r.URL.Query().Get("pin"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Name":"file","Hash":"QmTestCid","Size":"5"}`))
		case strings.Contains(r.URL.Path, "/api/v0/"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ID":"12D3KooWtest","Addresses":[],"Version":"0.20.0","Commit":"","Repo":"15"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIPFSPinner_pin(t *testing.T) {
	srv := fakeNode(t)
	p := pinning.NewIPFSPinner(srv.URL, zap.NewNop())

	require.NoError(t, p.Ping(context.Background()))
	cid, err := p.Pin(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "QmTestCid", cid)
}

func TestIPFSPinner_unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	p := pinning.NewIPFSPinner(srv.URL, zap.NewNop())

	_, err := p.Pin(context.Background(), []byte("hello"))
	assert.ErrorIs(t, err, pinning.ErrUnavailable)
}

func TestDisabled(t *testing.T) {
	_, err := pinning.Disabled{}.Pin(context.Background(), nil)
	assert.ErrorIs(t, err, pinning.ErrDisabled)
}
