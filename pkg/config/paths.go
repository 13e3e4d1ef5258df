// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the vigil data directory.
//
// Priority:
//  1. DATA_PATH environment variable (if set and non-empty)
//  2. ~/.vigil (default)
//
// The returned path is always absolute. A leading ~ is expanded to the
// user's home directory; relative paths resolve against the working
// directory. This reads os.Getenv directly because it runs during
// bootstrap, before any config file is located.
func DataDir() string {
	if dataPath := os.Getenv("DATA_PATH"); dataPath != "" {
		return expandPath(dataPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".vigil"
	}
	return filepath.Join(homeDir, ".vigil")
}

// SubDir returns a subdirectory within the data directory.
// Example: SubDir("plugins") returns ~/.vigil/plugins.
func SubDir(subdir string) string {
	return filepath.Join(DataDir(), subdir)
}

// DefaultConfigPath returns where the agent config file lives when the
// --config flag is not given.
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "vigil.yaml")
}

// DefaultStorePath returns the sqlite database location.
func DefaultStorePath() string {
	return filepath.Join(DataDir(), "vigil.db")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
