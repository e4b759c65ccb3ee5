package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainsToHTTPSAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		domains  []string
		expected string
	}{
		{
			name:     "single domain",
			domains:  []string{"example.com"},
			expected: "https://example.com",
		},
		{
			name:     "multiple domains",
			domains:  []string{"example.com", "www.example.com"},
			expected: "https://example.com, https://www.example.com",
		},
		{
			name:     "no domains",
			domains:  []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := domainsToHTTPSAddress(tt.domains)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestServeFuncErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tls  ServerTLS
	}{
		{
			name: "unknown mode",
			tls:  ServerTLS{Enabled: true, Mode: "magic"},
		},
		{
			name: "autocert without domains",
			tls:  ServerTLS{Enabled: true, Mode: TLSModeAutoCert, AutoCert: &ServerTLSAutoCert{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := &Server{Port: "0", Host: "127.0.0.1", TLS: tt.tls}

			err := s.Run(t.Context(), http.NotFoundHandler())
			require.Error(t, err)
		})
	}

	s := &Server{Port: "0", TLS: ServerTLS{Enabled: true, Mode: "magic"}}

	_, err := s.serveFunc(t.Context(), &http.Server{})

	var modeErr *UnknownTLSModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Equal(t, "magic", modeErr.Mode)
}

func TestRunShutsDownWhenContextIsDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	s := &Server{Port: "0", Host: "127.0.0.1"}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx, http.NotFoundHandler())
	require.NoError(t, err)
}
