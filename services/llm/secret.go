// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// loadAPIKey reads a provider API key into a sealed enclave.
//
// # Description
//
// The environment variable wins; a container secret file is the fallback.
// The plaintext is wiped from the process environment after it is sealed
// so the key only lives in guarded memory.
//
// # Inputs
//
//   - envVar: Environment variable name, e.g. "OPENAI_API_KEY".
//   - secretPath: Container secret file, e.g. "/run/secrets/openai_api_key".
//
// # Outputs
//
//   - *memguard.Enclave: The sealed key.
//   - error: Set when neither source yields a key.
func loadAPIKey(envVar, secretPath string) (*memguard.Enclave, error) {
	if key := os.Getenv(envVar); key != "" {
		os.Unsetenv(envVar)
		return memguard.NewEnclave([]byte(key)), nil
	}

	raw, err := os.ReadFile(secretPath)
	if err != nil {
		slog.Error("API key not found in environment or secret file",
			"env_var", envVar, "path", secretPath)
		return nil, fmt.Errorf("%s not set and secret %s unreadable", envVar, secretPath)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return nil, fmt.Errorf("secret %s is empty", secretPath)
	}
	slog.Info("Read API key from container secret", "path", secretPath)
	return memguard.NewEnclave([]byte(key)), nil
}

// withAPIKey opens the enclave, passes the plaintext to fn and wipes the
// buffer afterwards.
func withAPIKey(enclave *memguard.Enclave, fn func(key string) error) error {
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening API key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}
