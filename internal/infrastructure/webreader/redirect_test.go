package webreader

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRedirect(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		allowPrivate bool
		wantBlocked  bool
		wantErr      bool
	}{
		{name: "public host", target: "https://example.com/next"},
		{name: "metadata address", target: "http://169.254.169.254/latest/meta-data/", wantErr: true, wantBlocked: true},
		{name: "ipv6 loopback", target: "http://[::1]:8080/", wantErr: true, wantBlocked: true},
		{name: "private allowed", target: "http://10.0.0.8/", allowPrivate: true},
		{name: "non http scheme", target: "file:///etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.target)
			require.NoError(t, err)
			err = checkRedirect(tt.allowPrivate)(&http.Request{Method: http.MethodGet, URL: u}, nil)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.wantBlocked {
				assert.ErrorIs(t, err, ErrBlockedAddress)
			}
		})
	}
}
