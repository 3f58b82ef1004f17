//go:build windows

package main

import (
	"github.com/dualrole/remapd/internal/platform"
	winplatform "github.com/dualrole/remapd/internal/platform/windows"
)

func newPlatform() platform.Platform {
	return winplatform.New()
}
