package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMCP_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing logger",
			modify: func(c *Config) {
				c.Logger = nil
			},
			wantErr: true,
		},
		{
			name: "missing warehouse",
			modify: func(c *Config) {
				c.Warehouse = nil
			},
			wantErr: true,
		},
		{
			name: "sets default read header timeout",
			modify: func(c *Config) {
				c.ReadHeaderTimeout = 0
			},
			wantErr: false,
		},
		{
			name: "sets default shutdown timeout",
			modify: func(c *Config) {
				c.ShutdownTimeout = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(t)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.NotZero(t, cfg.ReadHeaderTimeout, "Config.Validate() should set default read header timeout")
				require.NotZero(t, cfg.ShutdownTimeout, "Config.Validate() should set default shutdown timeout")
			}
		})
	}
}
