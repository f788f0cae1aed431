package token

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// MaxTokenSize is the largest compact token Parse accepts, in bytes.
const MaxTokenSize = 8192

// segmentParser decodes base64url segments, padding them to a multiple of
// four with "=" first.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Parsed is a decoded but unverified JWT. It is immutable after Parse
// returns.
type Parsed struct {
	// Header is the decoded JOSE header.
	Header map[string]any

	// Payload is the decoded claim set. Numbers are json.Number values.
	Payload map[string]any

	// Signature holds the raw signature bytes.
	Signature []byte

	// SigningInput is header_segment + "." + payload_segment exactly as
	// received. It is never rebuilt from the decoded JSON.
	SigningInput []byte
}

// Alg returns the header's alg value, or "" if absent.
func (p *Parsed) Alg() string {
	s, _ := p.Header["alg"].(string)
	return s
}

// KeyID returns the header's kid value, or "" if absent.
func (p *Parsed) KeyID() string {
	s, _ := p.Header["kid"].(string)
	return s
}

// Parse splits raw into its three segments and decodes them. It fails with
// CodeMalformedToken unless raw has exactly three segments, each segment is
// valid base64url, and the header and payload are JSON objects.
func Parse(raw string) (*Parsed, error) {
	if raw == "" {
		return nil, sserr.New(sserr.CodeMalformedToken, "token: must not be empty")
	}
	if len(raw) > MaxTokenSize {
		return nil, sserr.New(sserr.CodeMalformedToken, "token: exceeds maximum size")
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, sserr.Newf(sserr.CodeMalformedToken,
			"token: expected 3 segments, got %d", len(parts))
	}

	header, err := decodeObject(parts[0], "header")
	if err != nil {
		return nil, err
	}
	payload, err := decodeObject(parts[1], "payload")
	if err != nil {
		return nil, err
	}
	sig, err := segmentParser.DecodeSegment(parts[2])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "token: signature is not valid base64url")
	}

	return &Parsed{
		Header:       header,
		Payload:      payload,
		Signature:    sig,
		SigningInput: []byte(raw[:len(parts[0])+1+len(parts[1])]),
	}, nil
}

func decodeObject(segment, name string) (map[string]any, error) {
	data, err := segmentParser.DecodeSegment(segment)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeMalformedToken, "token: %s is not valid base64url", name)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeMalformedToken, "token: %s is not a JSON object", name)
	}
	if obj == nil {
		return nil, sserr.Newf(sserr.CodeMalformedToken, "token: %s is not a JSON object", name)
	}
	return obj, nil
}
