package chainclient

import (
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultGRPCPort = "9090"

// CreateGRPCConnection creates a gRPC connection with transport security picked from the URL scheme.
//   - https:// URLs use TLS with default credentials
//   - http:// or no scheme use an insecure connection
//   - a missing port defaults to 9090
func CreateGRPCConnection(endpoint string) (*grpc.ClientConn, error) {
	if endpoint == "" {
		return nil, errors.New("empty endpoint provided")
	}

	target, useTLS := normalizeEndpoint(endpoint)

	var opts []grpc.DialOption
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create gRPC connection to %s", target)
	}
	return conn, nil
}

func normalizeEndpoint(endpoint string) (string, bool) {
	target := endpoint
	useTLS := false

	switch {
	case strings.HasPrefix(endpoint, "https://"):
		target = strings.TrimPrefix(endpoint, "https://")
		useTLS = true
	case strings.HasPrefix(endpoint, "http://"):
		target = strings.TrimPrefix(endpoint, "http://")
	}
	target = strings.TrimSuffix(target, "/")

	lastColon := strings.LastIndex(target, ":")
	if lastColon < 0 {
		return target + ":" + defaultGRPCPort, useTLS
	}
	if port := target[lastColon+1:]; port == "" || strings.Contains(port, "/") {
		return strings.TrimSuffix(target, ":") + ":" + defaultGRPCPort, useTLS
	}
	return target, useTLS
}
