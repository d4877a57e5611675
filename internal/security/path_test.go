package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "relative path",
			path: "config/config.json",
		},
		{
			name: "absolute path",
			path: "/var/lib/handoff/handoff.db",
		},
		{
			name: "dot-prefixed path",
			path: "./handoff.db",
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
			errMsg:  "cannot be empty",
		},
		{
			name:    "parent traversal",
			path:    "../../../etc/passwd",
			wantErr: true,
			errMsg:  "directory traversal",
		},
		{
			name:    "embedded traversal",
			path:    "config/../../secrets.json",
			wantErr: true,
			errMsg:  "directory traversal",
		},
		{
			name: "traversal that cleans away",
			path: "/data/config/../handoff.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
