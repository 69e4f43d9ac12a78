package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclight/civiclight/internal/civic"
)

func TestGetReturnsSharedClient(t *testing.T) {
	p := NewPool()
	defer p.CloseAll()

	a, err := p.Get(civic.VendorPrimeGov)
	require.NoError(t, err)
	b, err := p.Get(civic.VendorPrimeGov)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.Get(civic.VendorLegistar)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestGetAfterCloseFailsFast(t *testing.T) {
	p := NewPool()
	_, err := p.Get(civic.VendorGranicus)
	require.NoError(t, err)

	p.CloseAll()
	p.CloseAll() // idempotent

	_, err = p.Get(civic.VendorGranicus)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBrowserHeadersInjected(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	p := NewPool()
	defer p.CloseAll()
	client, err := p.Get(civic.VendorEscribe)
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.NotEmpty(t, gotAccept)
}

func TestCallerHeadersWin(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	p := NewPool()
	defer p.CloseAll()
	client, err := p.Get(civic.VendorLegistar)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "application/json", gotAccept)
}
