package mysql

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
)

func TestMapError_Numbers(t *testing.T) {
	tests := []struct {
		number uint16
		want   errs.ErrKind
	}{
		{1062, errs.ErrKindConstraintViolation},
		{1451, errs.ErrKindConstraintViolation},
		{1452, errs.ErrKindConstraintViolation},
		{1048, errs.ErrKindConstraintViolation},
		{1045, errs.ErrKindConnectionFailed},
		{1040, errs.ErrKindConnectionFailed},
		{1142, errs.ErrKindPermissionDenied},
		{1205, errs.ErrKindTimeout},
		{1146, errs.ErrKindUnknownTable},
		{1054, errs.ErrKindUnknownColumn},
		{1366, errs.ErrKindInvalidValue},
		{1064, errs.ErrKindQueryFailed},
	}

	for _, tt := range tests {
		err := mapError(&mysql.MySQLError{Number: tt.number, Message: "boom"}, "statement failed")
		assert.Equal(t, tt.want, errs.KindOf(err), "error %d", tt.number)
	}
}

func TestMapError_ConstraintDetail(t *testing.T) {
	err := mapError(&mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'a@b.c' for key 'users.email'",
	}, "statement failed")

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Duplicate entry 'a@b.c' for key 'users.email'", e.Detail)
}

func TestMapError_Transport(t *testing.T) {
	assert.Nil(t, mapError(nil, "x"))
	assert.True(t, errs.IsTimeout(mapError(context.DeadlineExceeded, "x")))
	assert.True(t, errs.IsConnectionFailed(mapError(driver.ErrBadConn, "x")))
	assert.True(t, errs.IsConnectionFailed(mapError(mysql.ErrInvalidConn, "x")))
}

func TestDSNConfig(t *testing.T) {
	cfg := database.DefaultConfig("app:secret@tcp(localhost:3306)/shop")
	cfg.Driver = database.DriverMySQL
	cfg.ConnectTimeout = 4 * time.Second

	mcfg, err := dsnConfig(cfg)
	require.NoError(t, err)
	assert.True(t, mcfg.ParseTime)
	assert.True(t, mcfg.ClientFoundRows)
	assert.Equal(t, 4*time.Second, mcfg.Timeout)
	assert.Equal(t, "shop", mcfg.DBName)

	_, err = dsnConfig(database.DefaultConfig("not a dsn"))
	assert.True(t, errs.IsConnectionFailed(err))
}
