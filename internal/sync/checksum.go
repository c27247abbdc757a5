package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// fingerprintFields are the JSON paths whose change marks a record as dirty.
// Kinds without an entry are never filtered.
var fingerprintFields = map[EntityKind][]string{
	EntityTransports: {"status", "updatedAt", "pricing"},
	EntityCompanies:  {"name", "email", "phone", "address"},
	EntityVehicles:   {"licensePlate", "type", "companyExternalId"},
	EntityTrailers:   {"licensePlate", "type", "companyExternalId"},
	EntityDrivers:    {"firstName", "lastName", "email", "phone", "isActive"},
	EntityContacts:   {"firstName", "lastName", "email", "phone"},
	EntityInvoices:   {"status", "totalWithTax", "dueDate", "paidAt"},
	EntityAddresses:  {"name", "street", "city", "postalCode", "country", "lat", "lng"},
	EntityCounters:   {"counters"},
}

// FingerprintFields returns the checksum paths of kind
func FingerprintFields(kind EntityKind) []string {
	return fingerprintFields[kind]
}

// Fingerprint hashes the selected dot-path fields of entity's JSON form.
// Missing paths hash as null, and object keys are sorted before hashing,
// so the result only depends on the selected values.
func Fingerprint(entity interface{}, fields []string) (string, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return "", fmt.Errorf("marshal entity: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("decode entity: %w", err)
	}

	projected := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		projected[f] = lookup(doc, f)
	}

	// encoding/json sorts map keys at every level
	canonical, err := json.Marshal(projected)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func lookup(doc interface{}, path string) interface{} {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return cur
}
