package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the server's runtime settings. Values come from flags and
// may be overridden by CHATRELAY_* environment variables.
type Config struct {
	ServerAddr     string   `env:"CHATRELAY_ADDR"`
	AllowedOrigins []string `env:"CHATRELAY_ALLOWED_ORIGINS" envSeparator:","`

	// DefaultRoomName is the display name of the always-present room.
	DefaultRoomName string `env:"CHATRELAY_DEFAULT_ROOM_NAME"`

	// HistoryLimit caps the events retained per room. Zero keeps every
	// event, matching the original relay behavior; a cap means newly
	// joining clients see a shorter history.
	HistoryLimit int `env:"CHATRELAY_HISTORY_LIMIT"`

	// AutoJoinDefaultRoom places a session in the default room as soon as
	// it claims a name.
	AutoJoinDefaultRoom bool `env:"CHATRELAY_AUTO_JOIN_DEFAULT_ROOM"`

	// AllowLeaveDefaultRoom permits leaving the default room back to the
	// lobby. When false, clients must switch to another room instead.
	AllowLeaveDefaultRoom bool `env:"CHATRELAY_ALLOW_LEAVE_DEFAULT_ROOM"`
}

func NewConfig(serverAddr, defaultRoomName string, historyLimit int, autoJoin, allowLeaveDefault bool, allowedOrigins []string) (*Config, error) {
	cfg := &Config{
		ServerAddr:            serverAddr,
		AllowedOrigins:        allowedOrigins,
		DefaultRoomName:       defaultRoomName,
		HistoryLimit:          historyLimit,
		AutoJoinDefaultRoom:   autoJoin,
		AllowLeaveDefaultRoom: allowLeaveDefault,
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if strings.TrimSpace(cfg.DefaultRoomName) == "" {
		return nil, fmt.Errorf("default room name cannot be empty")
	}
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("history limit cannot be negative")
	}

	return cfg, nil
}
