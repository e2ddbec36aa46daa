package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/teamgate"
)

func newMemoryAccount(id, email string, createdAt time.Time) teamgate.NewAccount {
	return teamgate.NewAccount{
		ID:           id,
		Email:        email,
		Name:         id,
		Role:         teamgate.RoleContributor,
		PasswordHash: "hash",
		CreatedAt:    createdAt,
	}
}

func TestMemoryDirectoryEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	_, err := dir.Create(ctx, newMemoryAccount("a", "ana@example.com", testNow))
	require.NoError(t, err)

	_, err = dir.Create(ctx, newMemoryAccount("b", "ana@example.com", testNow))
	assert.ErrorIs(t, err, teamgate.ErrAccountExists)

	_, err = dir.Create(ctx, newMemoryAccount("b", "bo@example.com", testNow))
	require.NoError(t, err)

	taken := "ana@example.com"
	_, err = dir.UpdateProfile(ctx, "b", teamgate.AccountUpdate{Email: &taken})
	assert.ErrorIs(t, err, teamgate.ErrAccountExists)

	moved := "bob@example.com"
	acct, err := dir.UpdateProfile(ctx, "b", teamgate.AccountUpdate{Email: &moved})
	require.NoError(t, err)
	assert.Equal(t, moved, acct.Email)

	_, err = dir.FindByEmail(ctx, "bo@example.com")
	assert.ErrorIs(t, err, teamgate.ErrAccountNotFound)
	found, err := dir.FindByEmail(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, "b", found.ID)
}

func TestMemoryDirectoryListOrder(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	for i, id := range []string{"c", "a", "b"} {
		_, err := dir.Create(ctx, newMemoryAccount(id, id+"@example.com", testNow.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestMemoryDirectoryMissingAccount(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	_, err := dir.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, teamgate.ErrAccountNotFound)
	assert.ErrorIs(t, dir.UpdatePasswordHash(ctx, "nope", "h"), teamgate.ErrAccountNotFound)
	_, err = dir.UpdateProfile(ctx, "nope", teamgate.AccountUpdate{})
	assert.ErrorIs(t, err, teamgate.ErrAccountNotFound)
}

func TestMemoryDirectoryConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := newMemoryAccount(string(rune('a'+i)), "same@example.com", testNow)
			if _, err := dir.Create(ctx, in); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}
