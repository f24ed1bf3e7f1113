// Package kv holds the client-side key/value stores the session artifacts are persisted in.
package kv

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/trezcool/studyplanner/core"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	core.SessionStorage

	// Get returns ErrNotFound when key is not set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

func keysWithPrefix(m map[string]string, prefix string) []string {
	keys := make([]string, 0)
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
