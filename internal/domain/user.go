package domain

import "time"

// User is an account that owns bots and subscribes to workflows.
type User struct {
	ID        int64
	Username  string
	Nickname  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SecretMask replaces secret variable values in API responses.
const SecretMask = "******"

// GlobalVariable is a key/value pair visible to every workflow run through
// the template namespace. Secret variables keep their real value in storage
// but are masked when listed.
type GlobalVariable struct {
	ID        int64
	Key       string
	Value     string
	IsSecret  bool
	UpdatedAt time.Time
}

// DisplayValue returns the value suitable for listing: the real value for
// plain variables, SecretMask for secret ones.
func (v *GlobalVariable) DisplayValue() string {
	if v.IsSecret {
		return SecretMask
	}
	return v.Value
}
