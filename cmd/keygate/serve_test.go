// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	expectedFlags := []string{
		"--server.listen_addr",
		"--server.metrics_addr",
		"--database.url",
		"--jwt.secret",
		"--jwt.issuer",
		"--jwt.audience",
		"--log.format",
	}
	for _, flag := range expectedFlags {
		assert.Contains(t, output, flag, "Help missing %q flag", flag)
	}
}

func TestServeCommand_DefaultValues(t *testing.T) {
	cmd := NewServeCmd()

	listenAddr, err := cmd.Flags().GetString("server.listen_addr")
	require.NoError(t, err)
	assert.Equal(t, ":8080", listenAddr)

	metricsAddr, err := cmd.Flags().GetString("server.metrics_addr")
	require.NoError(t, err)
	assert.Equal(t, ":9090", metricsAddr)

	issuer, err := cmd.Flags().GetString("jwt.issuer")
	require.NoError(t, err)
	assert.Equal(t, "keygate", issuer)

	audience, err := cmd.Flags().GetString("jwt.audience")
	require.NoError(t, err)
	assert.Equal(t, "authenticated", audience)

	logFormat, err := cmd.Flags().GetString("log.format")
	require.NoError(t, err)
	assert.Equal(t, "json", logFormat)

	databaseURL, err := cmd.Flags().GetString("database.url")
	require.NoError(t, err)
	assert.Empty(t, databaseURL, "database.url should have no default")

	secret, err := cmd.Flags().GetString("jwt.secret")
	require.NoError(t, err)
	assert.Empty(t, secret, "jwt.secret should have no default")
}

func TestServeCommand_Properties(t *testing.T) {
	cmd := NewServeCmd()

	assert.Equal(t, "serve", cmd.Use)
	assert.True(t, strings.Contains(cmd.Short, "server"), "Short description should mention server")
	assert.Contains(t, cmd.Long, "token grants", "Long description should mention token grants")
}

func TestServeCommand_MissingDatabaseURL(t *testing.T) {
	// Reset global
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"serve", "--jwt.secret", "0123456789abcdef0123456789abcdef"})

	err := cmd.Execute()
	require.Error(t, err, "Expected error when database URL is not configured")
	assert.Contains(t, err.Error(), "database.url")
}

func TestServeCommand_MissingJWTSecret(t *testing.T) {
	// Reset global
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"serve", "--database.url", "postgres://localhost/keygate"})

	err := cmd.Execute()
	require.Error(t, err, "Expected error when signing secret is not configured")
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestServeCommand_MissingConfigFile(t *testing.T) {
	// Reset global
	configFile = ""
	defer func() { configFile = "" }()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"--config", "/nonexistent/keygate.yaml", "serve"})

	err := cmd.Execute()
	require.Error(t, err, "Expected error when config file does not exist")
}
