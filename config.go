package dcbench

import (
	"errors"
	"fmt"

	"github.com/quic-go/dcbench/internal/protocol"
	"github.com/quic-go/dcbench/internal/slog"
)

// Clone clones a Config
func (c *Config) Clone() *Config {
	copy := *c
	return &copy
}

func validateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if config.MessageSize != 0 && config.MessageSize < protocol.MinMessageSize {
		return fmt.Errorf("invalid value for Config.MessageSize: %d, need at least %d bytes", config.MessageSize, protocol.MinMessageSize)
	}
	if config.MessageSize > protocol.MaxMessageSize {
		return fmt.Errorf("invalid value for Config.MessageSize: %d, at most %d bytes allowed", config.MessageSize, protocol.MaxMessageSize)
	}
	if config.TargetRate < 0 {
		return errors.New("invalid value for Config.TargetRate")
	}
	if config.ConfirmationTimeout < 0 {
		return errors.New("invalid value for Config.ConfirmationTimeout")
	}
	if config.MaxBufferedBytes < 0 {
		return errors.New("invalid value for Config.MaxBufferedBytes")
	}
	messageSize := config.MessageSize
	if messageSize == 0 {
		messageSize = protocol.DefaultMessageSize
	}
	maxBuffered := config.MaxBufferedBytes
	if maxBuffered == 0 {
		maxBuffered = protocol.DefaultMaxBufferedBytes
	}
	// the sender pauses once buffered bytes plus one message reach the limit
	if maxBuffered <= protocol.ByteCount(messageSize) {
		return fmt.Errorf("invalid value for Config.MaxBufferedBytes: %d, must be larger than the message size of %d bytes", maxBuffered, messageSize)
	}
	if config.StatsWindow < 0 {
		return errors.New("invalid value for Config.StatsWindow")
	}
	if config.RestartDelay < 0 {
		return errors.New("invalid value for Config.RestartDelay")
	}
	return nil
}

// populateConfig populates fields in the Config with their default values, if none are set.
// It may be called with nil.
func populateConfig(config *Config, role protocol.Role) *Config {
	if config == nil {
		config = &Config{}
	}
	address := config.Address
	if address == "" {
		address = protocol.DefaultAddress
	}
	messageSize := config.MessageSize
	if messageSize == 0 {
		messageSize = protocol.DefaultMessageSize
	}
	targetRate := config.TargetRate
	if targetRate == 0 {
		targetRate = protocol.DefaultTargetRate
	}
	confirmationTimeout := config.ConfirmationTimeout
	if confirmationTimeout == 0 {
		confirmationTimeout = protocol.DefaultConfirmationTimeout
	}
	maxBufferedBytes := config.MaxBufferedBytes
	if maxBufferedBytes == 0 {
		maxBufferedBytes = protocol.DefaultMaxBufferedBytes
	}
	statsWindow := config.StatsWindow
	if statsWindow == 0 {
		statsWindow = protocol.DefaultStatsWindow
	}
	restartDelay := config.RestartDelay
	if restartDelay == 0 {
		switch role {
		case protocol.RoleSender:
			restartDelay = protocol.DefaultSenderRestartDelay
		case protocol.RoleResponder:
			restartDelay = protocol.DefaultResponderRestartDelay
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.DefaultLogger()
	}

	return &Config{
		Address:             address,
		MessageSize:         messageSize,
		TargetRate:          targetRate,
		Unreliable:          config.Unreliable,
		ConfirmationTimeout: confirmationTimeout,
		MaxBufferedBytes:    maxBufferedBytes,
		StatsWindow:         statsWindow,
		RestartDelay:        restartDelay,
		Logger:              logger,
		Tracer:              config.Tracer,
	}
}
