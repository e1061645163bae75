package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisight/agrisight/internal/log"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoad_EmptySession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	state, err := s.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, state.Empty())
	assert.Empty(t, state.Aux)
}

func TestAppend_PreservesOrderAndRoles(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 1, []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("hello")),
		ai.NewModelMessage(ai.NewTextPart("hi there")),
	}))
	require.NoError(t, s.Append(ctx, 1, []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("how do I plant rice?")),
	}))

	state, err := s.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, state.Messages, 3)

	assert.Equal(t, ai.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "hello", state.Messages[0].Text())
	assert.Equal(t, ai.RoleModel, state.Messages[1].Role)
	assert.Equal(t, "hi there", state.Messages[1].Text())
	assert.Equal(t, "how do I plant rice?", state.Messages[2].Text())
}

func TestAppend_ToolPartsRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	toolMsg := ai.NewMessage(ai.RoleTool, nil, ai.NewToolResponsePart(&ai.ToolResponse{
		Name:   "getCurrentWeather",
		Output: `{"temperature":30}`,
	}))
	require.NoError(t, s.Append(ctx, 5, []*ai.Message{toolMsg}))

	state, err := s.Load(ctx, 5)
	require.NoError(t, err)
	require.Len(t, state.Messages, 1)
	require.Len(t, state.Messages[0].Content, 1)

	tr := state.Messages[0].Content[0].ToolResponse
	require.NotNil(t, tr)
	assert.Equal(t, "getCurrentWeather", tr.Name)
}

func TestAppend_UsersAreIndependent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 1, []*ai.Message{ai.NewUserMessage(ai.NewTextPart("a"))}))
	require.NoError(t, s.Append(ctx, 2, []*ai.Message{ai.NewUserMessage(ai.NewTextPart("b"))}))

	s1, err := s.Load(ctx, 1)
	require.NoError(t, err)
	s2, err := s.Load(ctx, 2)
	require.NoError(t, err)

	require.Len(t, s1.Messages, 1)
	require.Len(t, s2.Messages, 1)
	assert.Equal(t, "a", s1.Messages[0].Text())
	assert.Equal(t, "b", s2.Messages[0].Text())
}

func TestAppend_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := Open(path, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, 3, []*ai.Message{ai.NewUserMessage(ai.NewTextPart("persisted"))}))
	require.NoError(t, s.SetAux(ctx, 3, "flow.step", "language"))
	require.NoError(t, s.Close())

	reopened, err := Open(path, log.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	state, err := reopened.Load(ctx, 3)
	require.NoError(t, err)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "persisted", state.Messages[0].Text())
	assert.Equal(t, "language", state.Aux["flow.step"])
}

func TestAux_SetGetClear(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Aux(ctx, 1, "flow.step")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetAux(ctx, 1, "flow.step", "country"))
	v, ok, err := s.Aux(ctx, 1, "flow.step")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "country", v)

	// Upsert overwrites.
	require.NoError(t, s.SetAux(ctx, 1, "flow.step", "region"))
	v, _, err = s.Aux(ctx, 1, "flow.step")
	require.NoError(t, err)
	assert.Equal(t, "region", v)

	require.NoError(t, s.ClearAux(ctx, 1, "flow.step"))
	_, ok, err = s.Aux(ctx, 1, "flow.step")
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing again is idempotent.
	require.NoError(t, s.ClearAux(ctx, 1, "flow.step"))
}

func TestClearAuxPrefix(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAux(ctx, 1, "flow.step", "confirm"))
	require.NoError(t, s.SetAux(ctx, 1, "flow.field.language", "English"))
	require.NoError(t, s.SetAux(ctx, 1, "other", "kept"))

	require.NoError(t, s.ClearAuxPrefix(ctx, 1, "flow."))

	state, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"other": "kept"}, state.Aux)
}

func TestTruncate_KeepsNewestTurns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Append(ctx, 1, []*ai.Message{
			ai.NewUserMessage(ai.NewTextPart(string(rune('a' + i)))),
		}))
	}

	require.NoError(t, s.Truncate(ctx, 1, 2))

	state, err := s.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "e", state.Messages[0].Text())
	assert.Equal(t, "f", state.Messages[1].Text())

	// keep <= 0 is a no-op.
	require.NoError(t, s.Truncate(ctx, 1, 0))
	state, err = s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2)
}
