//go:build !linux

package main

import (
	"errors"

	"github.com/notnil/vescnode/canbus"
	"github.com/notnil/vescnode/internal/config"
)

func socketCANDialer(config.TransportConfig) (canbus.Dialer, error) {
	return nil, errors.New("socketcan transport is only available on linux")
}
