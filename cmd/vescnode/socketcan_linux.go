//go:build linux

package main

import (
	"github.com/notnil/vescnode/canbus"
	"github.com/notnil/vescnode/internal/config"
)

func socketCANDialer(tc config.TransportConfig) (canbus.Dialer, error) {
	return canbus.SocketCANDialer(tc.Interface, canbus.SocketCANOptions{
		ConfigureInterface: tc.ConfigureInterface,
	}), nil
}
