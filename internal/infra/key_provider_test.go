package infra

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

func TestEnsureJournalKey_FreshDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "reaper")

	key, err := EnsureJournalKey(dataDir)
	require.NoError(t, err)
	assert.Len(t, key, keySize)

	keys := NewJournalKeyFile(dataDir)
	require.True(t, keys.KeyExists())

	info, err := os.Stat(keys.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := EnsureJournalKey(dataDir)
	require.NoError(t, err)
	assert.Equal(t, key, again, "existing key is reused")
}

func TestOpenJournal_ReopenKeepsHistory(t *testing.T) {
	dataDir := t.TempDir()

	j, err := OpenJournal(dataDir)
	require.NoError(t, err)
	require.NoError(t, j.Report(context.Background(), domain.TickResult{
		Records: []domain.TerminationRecord{record(31, "cpu", domain.ResultSuccess)},
	}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(dataDir)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 31, got[0].PID)
}

func TestOpenJournal_KeyFileProblems(t *testing.T) {
	tests := []struct {
		name    string
		damage  func(t *testing.T, keyPath string)
		wantErr error
	}{
		{
			name: "key file removed",
			damage: func(t *testing.T, keyPath string) {
				require.NoError(t, os.Remove(keyPath))
			},
			wantErr: domain.ErrJournalKeyMissing,
		},
		{
			name: "key file is not base64",
			damage: func(t *testing.T, keyPath string) {
				require.NoError(t, os.WriteFile(keyPath, []byte("not base64 at all!"), 0600))
			},
			wantErr: domain.ErrJournalKeyCorrupt,
		},
		{
			name: "key file has wrong size",
			damage: func(t *testing.T, keyPath string) {
				short := base64.StdEncoding.EncodeToString(make([]byte, 16))
				require.NoError(t, os.WriteFile(keyPath, []byte(short), 0600))
			},
			wantErr: domain.ErrJournalKeyCorrupt,
		},
		{
			name: "key file replaced by another key",
			damage: func(t *testing.T, keyPath string) {
				other, err := GenerateKey()
				require.NoError(t, err)
				encoded := base64.StdEncoding.EncodeToString(other)
				require.NoError(t, os.WriteFile(keyPath, []byte(encoded), 0600))
			},
			wantErr: domain.ErrJournalKeyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			j, err := OpenJournal(dataDir)
			require.NoError(t, err)
			require.NoError(t, j.Heartbeat(domain.Daemon{PID: 1, StartedAt: time.Now()}))
			require.NoError(t, j.Close())

			tt.damage(t, NewJournalKeyFile(dataDir).Path())

			_, err = OpenJournal(dataDir)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.FileExists(t, filepath.Join(dataDir, journalDBName), "journal is left in place")
		})
	}
}

func TestJournalKeyFile_StoreKey(t *testing.T) {
	t.Run("rejects wrong size", func(t *testing.T) {
		keys := NewJournalKeyFile(t.TempDir())

		assert.Error(t, keys.StoreKey([]byte("short")))
		assert.False(t, keys.KeyExists())
	})

	t.Run("never replaces an existing key", func(t *testing.T) {
		keys := NewJournalKeyFile(t.TempDir())
		first, _ := GenerateKey()
		second, _ := GenerateKey()

		require.NoError(t, keys.StoreKey(first))
		assert.ErrorIs(t, keys.StoreKey(second), os.ErrExist)

		got, err := keys.LoadKey()
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("tolerates trailing newline", func(t *testing.T) {
		keys := NewJournalKeyFile(t.TempDir())
		key, _ := GenerateKey()
		require.NoError(t, os.WriteFile(keys.Path(), []byte(base64.StdEncoding.EncodeToString(key)+"\n"), 0600))

		got, err := keys.LoadKey()
		require.NoError(t, err)
		assert.Equal(t, key, got)
	})
}

func TestGenerateKey_Unique(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, keySize)
	assert.NotEqual(t, a, b)
}
