package auth

import (
	"fmt"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
)

// dummyHash is verified for unknown operators so a login takes the same
// time whether or not the name exists. It matches no password.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Operator is an authenticated API user.
type Operator struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type account struct {
	Operator
	hash string
}

// Directory holds the configured operator accounts. It is read-only after
// construction and safe for concurrent use.
type Directory struct {
	accounts map[string]account
}

// NewDirectory builds a directory from security.operators. Every entry
// needs a unique name, a valid Argon2id hash and a known role.
func NewDirectory(cfgs []config.OperatorConfig) (*Directory, error) {
	d := &Directory{accounts: make(map[string]account, len(cfgs))}
	for i, c := range cfgs {
		if c.Name == "" {
			return nil, fmt.Errorf("operators[%d]: name is required", i)
		}
		if _, dup := d.accounts[c.Name]; dup {
			return nil, fmt.Errorf("operators[%d]: %s declared twice", i, c.Name)
		}
		if err := ValidateHash(c.PasswordHash); err != nil {
			return nil, fmt.Errorf("operators[%d] %s: %w", i, c.Name, err)
		}
		role := Role(c.Role)
		if role == "" {
			role = RoleViewer
		}
		if !role.Valid() {
			return nil, fmt.Errorf("operators[%d] %s: unknown role %q", i, c.Name, c.Role)
		}
		d.accounts[c.Name] = account{Operator: Operator{Name: c.Name, Role: role}, hash: c.PasswordHash}
	}
	return d, nil
}

// Authenticate checks a name and password. Any mismatch is ErrInvalidCredentials.
func (d *Directory) Authenticate(name, password string) (Operator, error) {
	acct, ok := d.accounts[name]
	hash := acct.hash
	if !ok {
		hash = dummyHash
	}
	match, err := VerifyPassword(password, hash)
	if err != nil || !match || !ok {
		return Operator{}, ErrInvalidCredentials
	}
	return acct.Operator, nil
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	return len(d.accounts)
}
