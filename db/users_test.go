package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestGetUserIDExisting(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	testID := "3a7d9c3f-4a2c-4f10-9e3f-4a46880b1c55"
	mock.ExpectQuery("SELECT id FROM users WHERE username =").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testID))
	mock.ExpectRollback()

	// Look up the user.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	id, err := GetUserID(ctx, tx, "u1")
	assert.NoError(err, "unexpected error occurred while looking up the user ID")
	assert.Equal(testID, id)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestGetUserIDMissing(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations. The lookup returns no rows, so the user should
	// be added automatically.
	mock.ExpectBegin()
	testID := "8be84a20-8375-4a0e-b2a9-3c6efcbd1a4f"
	mock.ExpectQuery("SELECT id FROM users WHERE username =").
		WithArgs("newuser").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO users \\(username\\)").
		WithArgs("newuser").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testID))
	mock.ExpectRollback()

	// Look up the user.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	id, err := GetUserID(ctx, tx, "newuser")
	assert.NoError(err, "unexpected error occurred while looking up the user ID")
	assert.Equal(testID, id)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestListBroadcastRecipients(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"username"}).AddRow("admin1").AddRow("u1").AddRow("u2")
	mock.ExpectQuery("SELECT username FROM users WHERE role IN").
		WithArgs(RoleStudent, RoleAdmin).
		WillReturnRows(rows)
	mock.ExpectRollback()

	// List the recipients.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	recipients, err := ListBroadcastRecipients(ctx, tx)
	assert.NoError(err, "unexpected error occurred while listing broadcast recipients")
	assert.Equal([]string{"admin1", "u1", "u2"}, recipients)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestListAdmins(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"username"}).AddRow("admin1")
	mock.ExpectQuery("SELECT username FROM users WHERE role IN").
		WithArgs(RoleAdmin).
		WillReturnRows(rows)
	mock.ExpectRollback()

	// List the admins.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	admins, err := ListAdmins(ctx, tx)
	assert.NoError(err, "unexpected error occurred while listing admins")
	assert.Equal([]string{"admin1"}, admins)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}
