package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "public peer", remote: "203.0.113.9:4000", want: "203.0.113.9"},
		{name: "public peer ignores header", remote: "203.0.113.9:4000", forwarded: "198.51.100.1", want: "203.0.113.9"},
		{name: "proxy forwards client", remote: "10.0.0.2:80", forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "rightmost public hop", remote: "127.0.0.1:80", forwarded: "1.2.3.4, 198.51.100.1, 10.0.0.5", want: "198.51.100.1"},
		{name: "only internal hops", remote: "10.0.0.2:80", forwarded: "192.168.1.4", want: "10.0.0.2"},
		{name: "proxy without header", remote: "10.0.0.2:80", want: "10.0.0.2"},
		{name: "bare address", remote: "203.0.113.9", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, RealClientIP(r))
		})
	}
}
