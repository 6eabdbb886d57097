package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "holyrig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
rigs:
  - id: ic7300
    schema_file: ic7300.schema
    model_file: ic7300.model
    port: /dev/ttyUSB0
rpc:
  listen_addr: 127.0.0.1:7362
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rigs, 1)

	r := cfg.Rigs[0]
	require.Equal(t, DefaultInitRetries, r.InitRetries)
	require.Equal(t, DefaultReconnectEvery, r.ReconnectEvery)
	require.Equal(t, 9600, r.BaudRate)
}

func TestLoadHonorsExplicitTunables(t *testing.T) {
	path := writeTemp(t, `
rigs:
  - id: ic7300
    schema_file: ic7300.schema
    model_file: ic7300.model
    port: /dev/ttyUSB0
    init_retries: 5
    exchange_timeout: 500ms
rpc:
  listen_addr: 127.0.0.1:7362
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	r := cfg.Rigs[0]
	require.Equal(t, 5, r.InitRetries)
	require.Equal(t, 500*time.Millisecond, r.ExchangeTimeout)
}

func TestLoadRejectsDuplicateRigIDs(t *testing.T) {
	path := writeTemp(t, `
rigs:
  - id: ic7300
    schema_file: a.schema
    model_file: a.model
    port: /dev/ttyUSB0
  - id: ic7300
    schema_file: b.schema
    model_file: b.model
    port: /dev/ttyUSB1
rpc:
  listen_addr: 127.0.0.1:7362
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingSchemaFile(t *testing.T) {
	path := writeTemp(t, `
rigs:
  - id: ic7300
    model_file: a.model
    port: /dev/ttyUSB0
rpc:
  listen_addr: 127.0.0.1:7362
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNoRigs(t *testing.T) {
	path := writeTemp(t, `
rpc:
  listen_addr: 127.0.0.1:7362
`)

	_, err := Load(path)
	require.Error(t, err)
}
