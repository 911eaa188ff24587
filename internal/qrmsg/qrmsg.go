// Package qrmsg encodes inventory item identifiers into QR label payloads and
// decodes scanned payloads back into identifiers.
//
// A payload has the form <prefix><delim><id-token><delim><id>, for example
// "bigml2;id;42". Decoding never fails loudly: a payload that does not match
// the exact structure is reported as invalid.
package qrmsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shelfscan/internal/config"
)

const (
	DefaultPrefix    = "bigml2"
	DefaultDelimiter = ";"
	DefaultIDToken   = "id"
)

// ErrNegativeID is returned by EncodeChecked for ids below zero.
var ErrNegativeID = errors.New("qrmsg: item id must be non-negative")

// Codec holds the three tokens that frame a label payload.
type Codec struct {
	Prefix    string
	Delimiter string
	IDToken   string
}

// Default returns the codec used by printed labels unless configured otherwise.
func Default() Codec {
	return Codec{Prefix: DefaultPrefix, Delimiter: DefaultDelimiter, IDToken: DefaultIDToken}
}

// FromConfig builds a codec from the qr config section.
func FromConfig(cfg config.QR) Codec {
	codec := Default()
	if cfg.Prefix != "" {
		codec.Prefix = cfg.Prefix
	}
	if cfg.Delimiter != "" {
		codec.Delimiter = cfg.Delimiter
	}
	if cfg.IDToken != "" {
		codec.IDToken = cfg.IDToken
	}
	return codec
}

// Encode formats id as a label payload. Callers pass validated ids.
func (c Codec) Encode(id int64) string {
	var b strings.Builder
	b.Grow(len(c.Prefix) + len(c.IDToken) + 2*len(c.Delimiter) + 20)
	b.WriteString(c.Prefix)
	b.WriteString(c.Delimiter)
	b.WriteString(c.IDToken)
	b.WriteString(c.Delimiter)
	b.WriteString(strconv.FormatInt(id, 10))
	return b.String()
}

// EncodeChecked is Encode for unvalidated input.
func (c Codec) EncodeChecked(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("%w: %d", ErrNegativeID, id)
	}
	return c.Encode(id), nil
}

// Decode extracts the item id from msg. It returns (false, -1) unless msg is
// exactly prefix, id token and a non-negative decimal id joined by the delimiter.
func (c Codec) Decode(msg string) (bool, int64) {
	if msg == "" || c.Delimiter == "" {
		return false, -1
	}
	parts := strings.Split(msg, c.Delimiter)
	if len(parts) != 3 {
		return false, -1
	}
	if parts[0] != c.Prefix || parts[1] != c.IDToken {
		return false, -1
	}
	digits := parts[2]
	if digits == "" {
		return false, -1
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false, -1
		}
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return false, -1
	}
	return true, id
}
