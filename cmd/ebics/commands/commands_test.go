package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/ebics/ebicstest"
	"github.com/sirosfoundation/go-ebics/pkg/order"
)

func TestDescriptorFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   descriptorFlags
		want    order.Descriptor
		wantErr bool
	}{
		{
			name:  "legacy",
			flags: descriptorFlags{admin: "ful", business: "pain.001.001.03"},
			want:  order.Legacy{AdminType: order.AdminFUL, BusinessType: "pain.001.001.03"},
		},
		{
			name:  "structured",
			flags: descriptorFlags{structured: order.Structured{Service: "EOP", MessageName: "camt.053"}},
			want:  order.Structured{Service: "EOP", MessageName: "camt.053"},
		},
		{
			name:    "both",
			flags:   descriptorFlags{admin: "BTD", structured: order.Structured{Service: "EOP"}},
			wantErr: true,
		},
		{
			name:    "neither",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.descriptor()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), end)

	_, _, err = parseRange("2024-03-01", "")
	assert.Error(t, err)
	_, _, err = parseRange("03/01/2024", "2024-03-31")
	assert.Error(t, err)
}

func TestOutput(t *testing.T) {
	dir := t.TempDir()

	t.Run("commit", func(t *testing.T) {
		path := filepath.Join(dir, "ok.txt")
		w, commit, err := output(path)
		require.NoError(t, err)
		_, err = w.Write([]byte("statement"))
		require.NoError(t, err)
		require.NoError(t, commit(true))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "statement", string(data))
		assert.NoFileExists(t, path+".part")
	})

	t.Run("discard", func(t *testing.T) {
		path := filepath.Join(dir, "failed.txt")
		w, commit, err := output(path)
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, commit(false))

		assert.NoFileExists(t, path)
		assert.NoFileExists(t, path+".part")
	})
}

const cliConfig = `
bank:
  url: %s
  hostId: EBICSTEST
subscriber:
  userId: CLIUSER
  partnerId: PARTNER1
  version: H005
http:
  insecureSkipVerify: true
keystore:
  dir: %s
  password: secret
storage:
  badger:
    path: %s
logging:
  level: error
`

func run(t *testing.T, configPath string, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(append([]string{"--config", configPath}, args...))
	root.SetOut(io.Discard)
	err := root.Execute()
	require.NoError(t, closeApp(context.Background()))
	return err
}

func TestCLI_KeyManagement(t *testing.T) {
	bank := ebicstest.NewBank(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "ebics.yaml")
	yaml := fmt.Sprintf(cliConfig, bank.URL(), filepath.Join(dir, "keys"), filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	assert.ErrorContains(t, run(t, configPath, "ini"), "keys generate")

	require.NoError(t, run(t, configPath, "keys", "generate"))
	assert.Error(t, run(t, configPath, "keys", "generate"))
	require.NoError(t, run(t, configPath, "ini"))
	require.NoError(t, run(t, configPath, "hia"))

	sig, auth := bank.Registered(ebicstest.PartnerID, "CLIUSER")
	assert.True(t, sig)
	assert.True(t, auth)

	require.NoError(t, run(t, configPath, "hpb"))
	require.NoError(t, run(t, configPath, "status"))

	bank.AddDownload("EOP", []byte("camt.053 statement"))
	out := filepath.Join(dir, "statement.xml")
	require.NoError(t, run(t, configPath, "download", "--service", "EOP", "--message", "camt.053", "--out", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "camt.053 statement", string(data))

	require.NoError(t, run(t, configPath, "spr"))
	assert.True(t, bank.Revoked(ebicstest.PartnerID, "CLIUSER"))
}
