package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAPIConfig() *Config {
	return &Config{
		API: &APIConfig{
			Server: APIServerConfig{Listen: "127.0.0.1:8080"},
			Auth: APIAuthConfig{
				Users: []BasicAuthUser{
					{Username: "auditor", Password: "secret"},
				},
			},
			Database: APIDatabaseConfig{
				Driver: "sqlite",
				SQLite: SQLiteDatabaseConfig{Path: "./tatoor.db"},
			},
		},
	}
}

func TestValidateAPI(t *testing.T) {
	require.NoError(t, validAPIConfig().ValidateAPI())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing api section",
			mutate:  func(c *Config) { c.API = nil },
			wantErr: "api section is required",
		},
		{
			name:    "missing listen address",
			mutate:  func(c *Config) { c.API.Server.Listen = "" },
			wantErr: "listen address is required",
		},
		{
			name:    "missing sqlite path",
			mutate:  func(c *Config) { c.API.Database.SQLite.Path = "" },
			wantErr: "sqlite path is required",
		},
		{
			name: "missing postgres host",
			mutate: func(c *Config) {
				c.API.Database.Driver = "postgres"
			},
			wantErr: "postgres host is required",
		},
		{
			name: "unsupported driver",
			mutate: func(c *Config) {
				c.API.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "rate limit without quota",
			mutate: func(c *Config) {
				c.API.Server.RateLimit.Enabled = true
			},
			wantErr: "requests_per_minute must be positive",
		},
		{
			name: "no users and no anonymous read",
			mutate: func(c *Config) {
				c.API.Auth.Users = nil
			},
			wantErr: "at least one user is required",
		},
		{
			name: "user without password",
			mutate: func(c *Config) {
				c.API.Auth.Users[0].Password = ""
			},
			wantErr: "username and password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPI()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAPI_AnonymousReadWithoutUsers(t *testing.T) {
	cfg := validAPIConfig()
	cfg.API.Auth.AnonymousRead = true
	cfg.API.Auth.Users = nil

	assert.NoError(t, cfg.ValidateAPI())
}
