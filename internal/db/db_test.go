package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithForeignKeys(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"data/app.db", "data/app.db?_pragma=foreign_keys(1)"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_pragma=foreign_keys(1)"},
		{"file:x?_pragma=foreign_keys(1)", "file:x?_pragma=foreign_keys(1)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, withForeignKeys(tc.dsn))
	}
}

func TestConnectSqlite(t *testing.T) {
	gdb, err := Connect("sqlite", "file:connect_test?mode=memory&cache=shared")
	require.NoError(t, err)

	var on int
	require.NoError(t, gdb.Raw("PRAGMA foreign_keys").Scan(&on).Error)
	assert.Equal(t, 1, on)
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}
