package chainclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantTLS  bool
	}{
		{name: "plain host", endpoint: "localhost", want: "localhost:9090"},
		{name: "host with port", endpoint: "localhost:9191", want: "localhost:9191"},
		{name: "http url", endpoint: "http://grpc.example.com:9090", want: "grpc.example.com:9090"},
		{name: "https url without port", endpoint: "https://grpc.example.com", want: "grpc.example.com:9090", wantTLS: true},
		{name: "trailing colon", endpoint: "grpc.example.com:", want: "grpc.example.com:9090"},
		{name: "trailing slash", endpoint: "https://grpc.example.com:443/", want: "grpc.example.com:443", wantTLS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tls := normalizeEndpoint(tt.endpoint)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantTLS, tls)
		})
	}
}

func TestCreateGRPCConnection(t *testing.T) {
	t.Run("empty endpoint", func(t *testing.T) {
		conn, err := CreateGRPCConnection("")
		require.Error(t, err)
		assert.Nil(t, conn)
		assert.Contains(t, err.Error(), "empty endpoint")
	})

	t.Run("lazy connection is created", func(t *testing.T) {
		conn, err := CreateGRPCConnection("localhost:9090")
		require.NoError(t, err)
		require.NotNil(t, conn)
		assert.NoError(t, conn.Close())
	})
}
