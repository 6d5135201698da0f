package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("test-signing-key"))

	testCases := []struct {
		name         string
		serverAddr   string
		databaseDSN  string
		base64Secret string
		expectErr    bool
	}{
		{
			name:         "valid config",
			serverAddr:   "localhost:8000",
			databaseDSN:  "host=localhost user=postgres",
			base64Secret: secret,
		},
		{
			name:         "empty server address",
			databaseDSN:  "host=localhost user=postgres",
			base64Secret: secret,
			expectErr:    true,
		},
		{
			name:         "empty dsn",
			serverAddr:   "localhost:8000",
			base64Secret: secret,
			expectErr:    true,
		},
		{
			name:        "empty secret",
			serverAddr:  "localhost:8000",
			databaseDSN: "host=localhost user=postgres",
			expectErr:   true,
		},
		{
			name:         "invalid base64 secret",
			serverAddr:   "localhost:8000",
			databaseDSN:  "host=localhost user=postgres",
			base64Secret: "not-base64!!",
			expectErr:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.databaseDSN, tc.base64Secret, []string{"http://localhost:3000"})
			if tc.expectErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr)
			assert.Equal(t, tc.databaseDSN, cfg.DatabaseDSN)
			assert.Equal(t, []byte("test-signing-key"), cfg.SigningKey)
			assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		})
	}
}
