package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFileStorePersistsUsageAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Touch(ctx, "dev-1"))

	total, err := s.AddUsage(ctx, "dev-1", "2026-10-19", decimal.RequireFromString("1.2"))
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("1.2")))

	total, err = s.AddUsage(ctx, "dev-1", "2026-10-19", decimal.RequireFromString("0.8"))
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(2)))

	reopened, err := OpenFile(path)
	require.NoError(t, err)

	used, err := reopened.Usage(ctx, "dev-1", "2026-10-19")
	require.NoError(t, err)
	require.True(t, used.Equal(decimal.NewFromInt(2)), "got %s", used)

	used, err = reopened.Usage(ctx, "dev-1", "2026-10-20")
	require.NoError(t, err)
	require.True(t, used.IsZero())
}

func TestFileStoreReadsLegacyNumericUsage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.json")
	legacy := `{
  "users": {"dev-9": {"deviceId": "dev-9", "createdAt": "2024-05-01T10:00:00Z", "isPro": false, "licenseKey": null, "usage": {"2024-05-01": 3.5}}},
  "licenses": {}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)

	used, err := s.Usage(context.Background(), "dev-9", "2024-05-01")
	require.NoError(t, err)
	require.True(t, used.Equal(decimal.RequireFromString("3.5")))
}

func TestFileStoreBindLicense(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	created, err := s.BindLicense(ctx, "dev-1", "DICTADO-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.BindLicense(ctx, "dev-1", "DICTADO-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.False(t, created)

	_, err = s.BindLicense(ctx, "dev-2", "DICTADO-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, ErrAlreadyBound)

	key, err := s.LicenseFor(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, "DICTADO-AAAA-BBBB-CCCC", key)

	key, err = s.LicenseFor(ctx, "dev-2")
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestFileStoreSecondKeyReleasesFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := OpenFile("")
	require.NoError(t, err)

	_, err = s.BindLicense(ctx, "dev-1", "DICTADO-AAAA-AAAA-AAAA")
	require.NoError(t, err)
	_, err = s.BindLicense(ctx, "dev-1", "DICTADO-BBBB-BBBB-BBBB")
	require.NoError(t, err)

	snapshot := s.Snapshot()
	require.Equal(t, map[string]string{"DICTADO-BBBB-BBBB-BBBB": "dev-1"}, snapshot.Licenses)
	require.Equal(t, "DICTADO-BBBB-BBBB-BBBB", snapshot.Users["dev-1"].LicenseKey)
	require.True(t, snapshot.Users["dev-1"].IsPro)
}

func TestFileStoreConcurrentUsageIsSerialised(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenFile(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := "dev-a"
			if i%2 == 0 {
				identity = "dev-b"
			}
			_, err := s.AddUsage(ctx, identity, "2026-10-19", decimal.RequireFromString("0.1"))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	for _, identity := range []string{"dev-a", "dev-b"} {
		used, err := reopened.Usage(ctx, identity, "2026-10-19")
		require.NoError(t, err)
		require.True(t, used.Equal(decimal.NewFromInt(2)), "%s used %s", identity, used)
	}
}

func TestFileStoreWriteFailureIsReported(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	s, err := OpenFile(filepath.Join(blocker, "state.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err = s.AddUsage(context.Background(), "dev-1", "2026-10-19", decimal.NewFromInt(1))
	require.Error(t, err)

	used, err := s.Usage(context.Background(), "dev-1", "2026-10-19")
	require.NoError(t, err)
	require.True(t, used.Equal(decimal.NewFromInt(1)))
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	backend, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, backend)

	_, err = Open(context.Background(), Options{Driver: "etcd"})
	require.ErrorContains(t, err, "unknown store driver")
}
