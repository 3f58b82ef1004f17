//go:build !windows

package main

import (
	"github.com/dualrole/remapd/internal/platform"
	"github.com/dualrole/remapd/internal/platform/stub"
)

func newPlatform() platform.Platform {
	return stub.New()
}
