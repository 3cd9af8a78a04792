// Package app wires configuration to a running game link and provides the
// line-based console collaborator used by the CLI.
package app

import (
	"context"
	"net"
	"time"

	"github.com/1ureka/salvo/internal/config"
	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/signaling"
	"github.com/1ureka/salvo/internal/transport"
)

// Establisher returns the establisher for the configured role and
// transport. cfg is assumed to be valid.
func Establisher(cfg config.Config) link.Establisher {
	timeout := time.Duration(cfg.ConnectTimeout)
	interval := time.Duration(cfg.RetryInterval)

	opts := signaling.Options{
		Timeout:       timeout,
		RetryRefused:  cfg.RetryRefused,
		RetryInterval: interval,
		WebRTC: transport.Options{
			ICEServers:      cfg.ICEServers,
			IncludeLoopback: cfg.IncludeLoopback,
		},
	}

	switch {
	case cfg.Transport == config.TransportWS && cfg.Role == config.RoleHost:
		return signaling.NewWebSocketListener(opts)
	case cfg.Transport == config.TransportWS:
		return signaling.NewWebSocketDialer(opts)
	case cfg.Transport == config.TransportWebRTC && cfg.Role == config.RoleHost:
		return signaling.NewWebRTCListener(opts)
	case cfg.Transport == config.TransportWebRTC:
		return signaling.NewWebRTCDialer(opts)
	case cfg.Role == config.RoleHost:
		return &link.Listener{}
	default:
		return &link.Dialer{Timeout: timeout, RetryRefused: cfg.RetryRefused, RetryInterval: interval}
	}
}

// Open validates cfg and starts a Connection in the background. For the
// host role the bound address is returned as well, so an ephemeral port
// can be shown to the user.
func Open(ctx context.Context, cfg config.Config) (*link.Connection, net.Addr, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	est := Establisher(cfg)
	c := link.New(est)
	if err := c.Start(ctx, cfg.Address()); err != nil {
		return nil, nil, err
	}

	var addr net.Addr
	if b, ok := est.(interface{ Addr() net.Addr }); ok {
		addr = b.Addr()
	}
	return c, addr, nil
}
