package store

import (
	"github.com/nimburion/docsync/pkg/store/mongodb"
)

var (
	_ Adapter = (*mongodb.Adapter)(nil)
	_ Adapter = memoryAdapter{}
)
