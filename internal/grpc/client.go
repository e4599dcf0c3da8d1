// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package grpc

import (
	"context"
	cryptotls "crypto/tls"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// BearerCredentials attaches a session token to every call.
type BearerCredentials struct {
	Token string
	// AllowInsecure permits sending the token over plaintext connections.
	AllowInsecure bool
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c BearerCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	if c.Token == "" {
		return nil, nil
	}
	return map[string]string{AuthorizationKey: "Bearer " + c.Token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c BearerCredentials) RequireTransportSecurity() bool {
	return !c.AllowInsecure
}

// ClientConfig configures Dial.
type ClientConfig struct {
	Addr  string
	Token string
	// TLS is nil for plaintext, which also allows the token to travel unencrypted.
	TLS *cryptotls.Config
}

// Dial creates a client connection that authenticates with cfg.Token.
func Dial(cfg ClientConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if cfg.Addr == "" {
		return nil, oops.In("grpc").Errorf("address is required")
	}

	transport := insecure.NewCredentials()
	if cfg.TLS != nil {
		transport = credentials.NewTLS(cfg.TLS)
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithPerRPCCredentials(BearerCredentials{Token: cfg.Token, AllowInsecure: cfg.TLS == nil}),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, oops.In("grpc").With("addr", cfg.Addr).Wrapf(err, "create client")
	}
	return conn, nil
}
