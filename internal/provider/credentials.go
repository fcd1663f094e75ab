package provider

import "strings"

// Credentials maps secret names (e.g. OPENAI_API_KEY) to their values.
type Credentials map[string]string

// Get returns the trimmed value of a secret, or "" when unset.
func (c Credentials) Get(name string) string {
	return strings.TrimSpace(c[name])
}

// Require returns a *MissingSecretError for the first name that has no value.
func (c Credentials) Require(providerName string, names ...string) error {
	for _, name := range names {
		if c.Get(name) == "" {
			return &MissingSecretError{Provider: providerName, Secret: name}
		}
	}
	return nil
}

// Subset copies only the named secrets, so a provider never sees another
// provider's keys.
func (c Credentials) Subset(names ...string) Credentials {
	out := make(Credentials, len(names))
	for _, name := range names {
		if v := c.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}
