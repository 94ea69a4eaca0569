package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "sqlite",
			cfg:  Config{Driver: DriverSQLite, Path: "runs.db"},
			want: "runs.db",
		},
		{
			name: "empty driver defaults to sqlite",
			cfg:  Config{Path: "runs.db"},
			want: "runs.db",
		},
		{
			name:    "sqlite without path",
			cfg:     Config{Driver: DriverSQLite},
			wantErr: true,
		},
		{
			name: "mysql",
			cfg: Config{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     3306,
				User:     "steps",
				Password: "secret",
				Database: "browser_steps",
			},
			want: "steps:secret@tcp(localhost:3306)/browser_steps?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "postgres"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnect_SQLite(t *testing.T) {
	db, err := Connect(Config{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "runs.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestVersions(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)
}
