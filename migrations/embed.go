// Package migrations holds the SocialDog schema for identities, profiles and
// the dogs members list.
package migrations

import "embed"

// Files is applied by internal/platform/migrate at API start-up when the
// postgres store is selected.
//
//go:embed *.sql
var Files embed.FS
