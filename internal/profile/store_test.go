package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisight/agrisight/internal/log"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.json")
	s, err := Open(path, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestGet_AbsentUserReturnsZeroProfile(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	p := s.Get(42)
	assert.Equal(t, int64(42), p.ID)
	assert.False(t, p.Complete())
}

func TestSetField_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)

	_, err := s.SetField(7, FieldName, "Rosa")
	require.NoError(t, err)
	_, err = s.SetField(7, FieldLanguage, "English")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path, log.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	p := reopened.Get(7)
	assert.Equal(t, "Rosa", p.Name)
	assert.Equal(t, "English", p.Language)
	assert.False(t, p.Complete(), "partial profile must not read as complete")
}

func TestSetField_UnknownField(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	_, err := s.SetField(1, Field("favorite_crop"), "rice")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestPut_WholeRecordCommit(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	want := Profile{ID: 9, Name: "Ben", Language: "English", Country: "Philippines", Region: "Luzon"}
	require.NoError(t, s.Put(want))

	got := s.Get(9)
	assert.Equal(t, want, got)
	assert.True(t, s.Complete(9))
}

func TestComplete_RequiresAllFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Profile
		want bool
	}{
		{"empty", Profile{ID: 1}, false},
		{"language only", Profile{ID: 1, Language: "English"}, false},
		{"missing region", Profile{ID: 1, Language: "English", Country: "Indonesia"}, false},
		{"all set", Profile{ID: 1, Language: "English", Country: "Indonesia", Region: "Java"}, true},
		{"name not required", Profile{ID: 1, Language: "en", Country: "Vietnam", Region: "Mekong Delta"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.p.Complete())
		})
	}
}

// breakFlush makes the next durable write fail by squatting a directory on
// the temp-file path the atomic rewrite uses. restore undoes it.
func breakFlush(t *testing.T, path string) (restore func()) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.Mkdir(tmp, 0o750))
	return func() { require.NoError(t, os.Remove(tmp)) }
}

func TestSetField_FailedWriteLeavesMemoryClean(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)

	_, err := s.SetField(7, FieldLanguage, "English")
	require.NoError(t, err)

	restore := breakFlush(t, path)
	_, err = s.SetField(7, FieldCountry, "Philippines")
	require.Error(t, err)

	p := s.Get(7)
	assert.Equal(t, "English", p.Language, "durable field must survive")
	assert.Empty(t, p.Country, "field from the failed write must not be readable")

	// New users from a failed write must not linger either.
	_, err = s.SetField(8, FieldName, "Liza")
	require.Error(t, err)
	assert.Empty(t, s.Get(8).Name)

	restore()
	_, err = s.SetField(7, FieldCountry, "Philippines")
	require.NoError(t, err)
	assert.Equal(t, "Philippines", s.Get(7).Country)
}

func TestPut_FailedWriteLeavesMemoryClean(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)

	require.NoError(t, s.Put(Profile{ID: 9, Language: "English", Country: "Vietnam", Region: "Mekong Delta"}))

	restore := breakFlush(t, path)
	defer restore()

	err := s.Put(Profile{ID: 9, Language: "Filipino", Country: "Philippines", Region: "Luzon"})
	require.Error(t, err)

	got := s.Get(9)
	assert.Equal(t, "Vietnam", got.Country, "prior durable record must be restored")

	err = s.Put(Profile{ID: 10, Language: "English", Country: "Thailand", Region: "Isan"})
	require.Error(t, err)
	assert.False(t, s.Complete(10), "non-durable commit must not read as complete")
}

func TestOpen_SecondInstanceRejected(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)
	_ = s // keep lock held

	_, err := Open(path, log.NewNop())
	assert.True(t, errors.Is(err, ErrLocked), "second Open should fail with ErrLocked, got %v", err)
}

func TestOpen_CorruptFileFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path, log.NewNop())
	assert.Error(t, err)
}
