package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAccount(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()

	acc, err := e.accounts.Register(ctx, &transfer.AccountCreation{Username: "  alice ", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, models.AccountStatusActive, acc.Status)
	assert.NotEqual(t, "s3cret", acc.EncryptedSecret)

	raw, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")
	assert.NotContains(t, string(raw), acc.EncryptedSecret)

	creds, err := e.accounts.Credentials(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", creds.Secret)

	_, err = e.accounts.Register(ctx, &transfer.AccountCreation{Username: "alice", Password: "x"})
	assert.ErrorIs(t, err, models.ErrDuplicateAccount)

	_, err = e.accounts.Register(ctx, &transfer.AccountCreation{Username: "", Password: "x"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.accounts.Register(ctx, &transfer.AccountCreation{Username: "bob"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateAccount(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()
	acc := e.account(t, "alice")

	got, err := e.accounts.Update(ctx, acc.ID, &transfer.AccountUpdate{Status: "limited", Password: "rotated"})
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusLimited, got.Status)

	creds, err := e.accounts.Credentials(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", creds.Secret)

	_, err = e.accounts.Update(ctx, acc.ID, &transfer.AccountUpdate{Status: "banned"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.accounts.Update(ctx, acc.ID, &transfer.AccountUpdate{})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.accounts.Update(ctx, 999, &transfer.AccountUpdate{Status: "active"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestProbeAccount(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()
	acc := e.account(t, "alice")

	e.publisher.probeFail["alice"] = errPlatform
	got, err := e.accounts.Probe(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusInactive, got.Status)

	delete(e.publisher.probeFail, "alice")
	got, err = e.accounts.Probe(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, got.Status)

	_, err = e.accounts.Probe(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteAccountWithPendingJobs(t *testing.T) {
	e := newEnv(t, DispatchOptions{})
	ctx := context.Background()
	acc := e.account(t, "alice")
	jobs := createJobs(t, e, 0, acc.ID)

	assert.ErrorIs(t, e.accounts.Delete(ctx, acc.ID), models.ErrAccountInUse)

	_, err := e.jobs.Cancel(ctx, jobs[0].ID)
	require.NoError(t, err)
	require.NoError(t, e.accounts.Delete(ctx, acc.ID))

	_, err = e.accounts.Get(ctx, acc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, e.accounts.Delete(ctx, acc.ID), models.ErrNotFound)
}
