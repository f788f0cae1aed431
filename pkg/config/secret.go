package config

// Secret is a string that redacts itself when printed or serialized. The
// loader fills it like any other string field; use Value where the raw
// secret is genuinely needed.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string { return secretRedacted }

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON, YAML and other text encodings.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
