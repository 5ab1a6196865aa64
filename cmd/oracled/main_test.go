package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GPTx-global/flight-oracle/oracle/config"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	log.InitLogger("error")

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestInitCmd(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, "init", "--home", home)

	require.NoError(t, err)
	require.Contains(t, out, filepath.Join(home, config.FileName))
	_, err = os.Stat(filepath.Join(home, config.FileName))
	require.NoError(t, err)
	require.NoError(t, config.Load(home))
}

func TestConsultCmd_RequiresFlags(t *testing.T) {
	_, err := execute(t, "consult", "--home", t.TempDir(), "--index", "4")

	require.Error(t, err)
	require.Contains(t, err.Error(), "required flag")
}

func TestConsultCmd_InvalidAirline(t *testing.T) {
	_, err := execute(t, "consult", "--home", t.TempDir(), "--index", "4", "--airline", "0x12", "--flight", "ND1309")

	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrInvalidRequest))
}

func TestStartCmd_InvalidConfig(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte("[signer]\nmode = \"ledger\"\n"), 0o644))

	_, err := execute(t, "start", "--home", home)

	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrInvalidConfig))
}

func TestBackfillCmd_MissingContract(t *testing.T) {
	_, err := execute(t, "backfill", "--home", t.TempDir())

	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrInvalidConfig))
}
