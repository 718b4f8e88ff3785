package session_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/pkg/session"
)

func TestStore_LazyCreation(t *testing.T) {
	st := session.NewStore()
	assert.Equal(t, 0, st.Len())

	s := st.Get("abc")
	require.NotNil(t, s)
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, st.Len())

	// Same id yields the same session.
	assert.Same(t, s, st.Get("abc"))
	assert.Equal(t, 1, st.Len())
}

func TestSession_TwoTurnsFourMessages(t *testing.T) {
	st := session.NewStore()
	s := st.Get("conv")

	s.Append(models.NewChatMessage(models.RoleUser, "first question"))
	s.Append(models.NewChatMessage(models.RoleAssistant, "first answer"))
	s.Append(models.NewChatMessage(models.RoleUser, "second question"))
	s.Append(models.NewChatMessage(models.RoleAssistant, "second answer"))

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{
		models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant,
	}, []string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, "second answer", msgs[3].Content)
}

func TestSession_WindowIsSuffix(t *testing.T) {
	st := session.NewStore()
	s := st.Get("conv")

	for i := 0; i < 30; i++ {
		s.Append(models.NewChatMessage(models.RoleUser, fmt.Sprintf("msg %d", i)))
	}

	window := s.Window(20)
	require.Len(t, window, 20)
	assert.Equal(t, "msg 10", window[0].Content)
	assert.Equal(t, "msg 29", window[19].Content)

	// Window never truncates the underlying history.
	assert.Equal(t, 30, s.Len())

	// Larger than history: everything.
	assert.Len(t, s.Window(100), 30)
}

func TestSession_WindowCopyIsIsolated(t *testing.T) {
	st := session.NewStore()
	s := st.Get("conv")
	s.Append(models.NewChatMessage(models.RoleUser, "original"))

	window := s.Window(10)
	window[0].Content = "mutated"

	assert.Equal(t, "original", s.Messages()[0].Content)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	st := session.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := st.Get(fmt.Sprintf("session-%d", i%5))
			s.Append(models.NewChatMessage(models.RoleUser, "hello"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, st.Len())
	total := 0
	for i := 0; i < 5; i++ {
		total += st.Get(fmt.Sprintf("session-%d", i)).Len()
	}
	assert.Equal(t, 50, total)
}

func TestSession_TurnLockSerializes(t *testing.T) {
	st := session.NewStore()
	s := st.Get("conv")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Lock()
			defer s.Unlock()
			s.Append(models.NewChatMessage(models.RoleUser, fmt.Sprintf("q%d", i)))
			s.Append(models.NewChatMessage(models.RoleAssistant, fmt.Sprintf("a%d", i)))
		}(i)
	}
	wg.Wait()

	// Under the turn lock, user/assistant pairs never interleave.
	msgs := s.Messages()
	require.Len(t, msgs, 20)
	for i := 0; i < 20; i += 2 {
		assert.Equal(t, models.RoleUser, msgs[i].Role)
		assert.Equal(t, models.RoleAssistant, msgs[i+1].Role)
		assert.Equal(t, msgs[i].Content[1:], msgs[i+1].Content[1:])
	}
}
