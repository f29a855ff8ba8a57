package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

func TestParseFlag(t *testing.T) {
	testCases := []struct {
		arg       string
		wantName  string
		wantValue interface{}
		wantOK    bool
	}{
		{arg: "--proxy-server=http://127.0.0.1:8080", wantName: "proxy-server", wantValue: "http://127.0.0.1:8080", wantOK: true},
		{arg: "--start-maximized", wantName: "start-maximized", wantValue: true, wantOK: true},
		{arg: "  disable-gpu ", wantName: "disable-gpu", wantValue: true, wantOK: true},
		{arg: "--", wantOK: false},
		{arg: "--=value", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.arg, func(t *testing.T) {
			name, value, ok := parseFlag(tc.arg)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantName, name)
				assert.Equal(t, tc.wantValue, value)
			}
		})
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := schemas.SessionConfig{}.WithDefaults()
	withPaths := base
	withPaths.ExecutablePath = "/usr/bin/chromium"
	withPaths.ProfileDir = "/tmp/profile"
	withPaths.Args = []string{"--proxy-server=x", "--"}

	// Exec path, profile dir and one parsed flag on top of the base set.
	assert.Len(t, AllocatorOptions(withPaths), len(AllocatorOptions(base))+3)
}
