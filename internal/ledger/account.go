package ledger

// Account is the state the ledger keeps for one address.
type Account struct {
	Owner      Pubkey `json:"owner"`
	Lamports   uint64 `json:"lamports"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`

	// borrows counts outstanding shared borrows; -1 marks an exclusive one.
	borrows int
}

// NewAccount allocates a zeroed account of the given size.
func NewAccount(lamports uint64, space int, owner Pubkey) *Account {
	return &Account{
		Owner:    owner,
		Lamports: lamports,
		Data:     make([]byte, space),
	}
}

// Clone returns a deep copy without any outstanding borrows.
func (a *Account) Clone() *Account {
	c := &Account{
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}
	if a.Data != nil {
		c.Data = append([]byte{}, a.Data...)
	}
	return c
}

// IsBorrowedMut reports whether an exclusive borrow is outstanding.
func (a *Account) IsBorrowedMut() bool {
	return a.borrows < 0
}

// IsBorrowed reports whether any borrow is outstanding.
func (a *Account) IsBorrowed() bool {
	return a.borrows != 0
}

// AccountInfo is one entry of an instruction's positional account list.
// Entries with the same key share one *Account.
type AccountInfo struct {
	Key        Pubkey
	IsSigner   bool
	IsWritable bool
	*Account
}

// Access distinguishes shared from exclusive borrows.
type Access int

const (
	Shared Access = iota + 1
	Exclusive
)

func (a Access) String() string {
	switch a {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	}
	return "invalid"
}

// Borrow is an access token over an account's data. At most one exclusive
// or any number of shared tokens may be outstanding per account.
type Borrow struct {
	acc      *Account
	mode     Access
	released bool
}

// BorrowShared takes a read-only token. It fails while an exclusive token
// is outstanding.
func (a *Account) BorrowShared() (*Borrow, error) {
	if a.borrows < 0 {
		return nil, ErrAccountBorrowFailed
	}
	a.borrows++
	return &Borrow{acc: a, mode: Shared}, nil
}

// BorrowMut takes an exclusive token. It fails while any other token is
// outstanding.
func (a *Account) BorrowMut() (*Borrow, error) {
	if a.borrows != 0 {
		return nil, ErrAccountBorrowFailed
	}
	a.borrows = -1
	return &Borrow{acc: a, mode: Exclusive}, nil
}

// Mode reports the kind of access the token grants.
func (b *Borrow) Mode() Access {
	return b.mode
}

// Data returns the borrowed bytes. Callers holding a shared token must not
// write through the slice.
func (b *Borrow) Data() []byte {
	return b.acc.Data
}

// Release returns the token. Releasing twice is a no-op.
func (b *Borrow) Release() {
	if b.released {
		return
	}
	b.released = true
	if b.mode == Exclusive {
		b.acc.borrows = 0
		return
	}
	b.acc.borrows--
}
