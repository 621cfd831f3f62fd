package webreader_test

import (
	"context"
	"net/netip"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/infrastructure/webreader"
)

const page = `<html><head><title> Weather </title><style>p{}</style></head>
<body><h1>Today</h1><script>var x = 1;</script><p>Sunny   and
warm</p></body></html>`

func TestExtract(t *testing.T) {
	title, text := webreader.Extract([]byte(page))
	assert.Equal(t, "Weather", title)
	assert.Equal(t, "Today Sunny and warm", text)
}

func TestReader_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		case "/long":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 100)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := webreader.NewReader(webreader.Config{MaxChars: 10, AllowPrivateNetworks: true})

	got, err := r.Read(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Weather", got.Title)
	assert.Equal(t, "Today Sunn", got.Content)
	assert.True(t, got.Truncated)

	got, err = r.Read(context.Background(), srv.URL+"/long")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), got.Content)

	_, err = r.Read(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = r.Read(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestReader_BlocksNonPublicAddresses(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("secret"))
	}))
	defer internal.Close()

	r := webreader.NewReader(webreader.Config{})
	tests := []struct {
		name string
		url  string
	}{
		{name: "loopback listener", url: internal.URL},
		{name: "localhost name", url: strings.Replace(internal.URL, "127.0.0.1", "localhost", 1)},
		{name: "cloud metadata", url: "http://169.254.169.254/latest/meta-data/"},
		{name: "private range", url: "http://10.0.0.8/"},
		{name: "ipv6 loopback", url: "http://[::1]:9/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Read(context.Background(), tt.url)
			assert.ErrorIs(t, err, webreader.ErrBlockedAddress)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestRoutable(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:4700::1111", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, webreader.Routable(netip.MustParseAddr(tt.addr)))
		})
	}
}
