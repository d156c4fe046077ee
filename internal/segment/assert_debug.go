//go:build oschat_debug

package segment

const assertHeld = true
