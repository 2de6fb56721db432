package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainProcedure separates procedure identities from any other hash that
// might be computed over the same canonical bytes. The version suffix leaves
// room for a future algorithm change.
const DomainProcedure = "choreo/procedure/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Identity computes the deterministic fingerprint of a procedure invocation.
// Two start requests with the same name and structurally equal arguments
// produce the same identity regardless of map ordering or Unicode
// normalization form.
func Identity(procedure string, args []Value) (string, error) {
	if args == nil {
		args = List{}
	}
	obj := Map{
		"procedure": String(procedure),
		"args":      List(args),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("procedure identity: %w", err)
	}
	return hashWithDomain(DomainProcedure, canonical), nil
}

// MustIdentity is like Identity but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIdentity(procedure string, args []Value) string {
	id, err := Identity(procedure, args)
	if err != nil {
		panic(err)
	}
	return id
}
