// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"crypto/md5" //nolint:gosec // G501: gravatar identifies images by the MD5 of the email
	"encoding/hex"
	"strings"
)

// Gravatar parameters: 200px, rated PG, protocol-relative.
const (
	gravatarBase   = "//www.gravatar.com/avatar/"
	gravatarParams = "?s=200&r=pg"
)

// AvatarURL derives the Gravatar URL for an email address.
func AvatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email)))) //nolint:gosec // see import
	return gravatarBase + hex.EncodeToString(sum[:]) + gravatarParams
}
