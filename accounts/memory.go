package accounts

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/teamgate"
)

// MemoryDirectory is an in-process AccountDirectory. It is safe for
// concurrent use and loses everything on restart.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]teamgate.Account
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]teamgate.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, normalizedEmail string) (teamgate.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[normalizedEmail]
	if !ok {
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	}
	return d.byID[id], nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (teamgate.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.byID[id]
	if !ok {
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	}
	return acct, nil
}

func (d *MemoryDirectory) Create(_ context.Context, input teamgate.NewAccount) (teamgate.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byEmail[input.Email]; taken {
		return teamgate.Account{}, teamgate.ErrAccountExists
	}
	if _, taken := d.byID[input.ID]; taken {
		return teamgate.Account{}, teamgate.ErrAccountExists
	}

	acct := teamgate.Account{
		ID:           input.ID,
		Email:        input.Email,
		Name:         input.Name,
		Role:         input.Role,
		PasswordHash: input.PasswordHash,
		CreatedAt:    input.CreatedAt,
		UpdatedAt:    input.CreatedAt,
	}
	d.byID[acct.ID] = acct
	d.byEmail[acct.Email] = acct.ID
	return acct, nil
}

func (d *MemoryDirectory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.byID[id]
	if !ok {
		return teamgate.ErrAccountNotFound
	}
	acct.PasswordHash = hash
	acct.UpdatedAt = d.now().UTC()
	d.byID[id] = acct
	return nil
}

func (d *MemoryDirectory) UpdateProfile(_ context.Context, id string, update teamgate.AccountUpdate) (teamgate.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.byID[id]
	if !ok {
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	}

	if update.Email != nil && *update.Email != acct.Email {
		if _, taken := d.byEmail[*update.Email]; taken {
			return teamgate.Account{}, teamgate.ErrAccountExists
		}
		delete(d.byEmail, acct.Email)
		acct.Email = *update.Email
		d.byEmail[acct.Email] = id
	}
	if update.Name != nil {
		acct.Name = *update.Name
	}
	if update.Role != nil {
		acct.Role = *update.Role
	}
	acct.UpdatedAt = d.now().UTC()
	d.byID[id] = acct
	return acct, nil
}

func (d *MemoryDirectory) List(context.Context) ([]teamgate.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]teamgate.Account, 0, len(d.byID))
	for _, acct := range d.byID {
		out = append(out, acct)
	}
	slices.SortFunc(out, func(a, b teamgate.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}
