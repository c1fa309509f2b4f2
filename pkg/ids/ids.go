// Package ids generates and inspects type-prefixed document identifiers.
//
// An id has the form "<prefix>_<24 hex chars>", for example
// "pr_65f1c0d2a4b5c6d7e8f90123". The hex part is a MongoDB ObjectID so ids
// sort roughly by creation time.
package ids

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Well-known prefixes, one per entity type.
const (
	PrefixProduct        = "pr"
	PrefixCollection     = "col"
	PrefixDiscount       = "dis"
	PrefixStorefront     = "sf"
	PrefixShippingMethod = "ship"
	PrefixPost           = "post"
	PrefixImage          = "img"
	PrefixCustomer       = "cus"
	PrefixOrder          = "order"
	PrefixTag            = "tag"
	PrefixNotification   = "not"
	PrefixAuthUser       = "au"
)

// New returns a fresh id carrying the given prefix.
func New(prefix string) string {
	return prefix + "_" + primitive.NewObjectID().Hex()
}

// Split separates an id into its prefix and object id parts.
// ok is false when s is not a well-formed prefixed id.
func Split(s string) (prefix, hex string, ok bool) {
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 || idx == len(s)-1 {
		return "", "", false
	}
	prefix, hex = s[:idx], s[idx+1:]
	if _, err := primitive.ObjectIDFromHex(hex); err != nil {
		return "", "", false
	}
	return prefix, hex, true
}

// IsID reports whether s looks like an id with the given prefix.
// An empty prefix accepts any prefix.
func IsID(s, prefix string) bool {
	p, _, ok := Split(s)
	if !ok {
		return false
	}
	return prefix == "" || p == prefix
}
