package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_ReturnsValidUUID(t *testing.T) {
	m := New(time.Minute)
	s := m.Create()

	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
}

func TestGetOrCreate_ReusesExistingSession(t *testing.T) {
	m := New(time.Minute)
	s1 := m.Create()

	s2 := m.GetOrCreate(s1.ID)
	assert.Equal(t, s1.ID, s2.ID)
}

func TestGetOrCreate_EmptyIDCreatesFresh(t *testing.T) {
	m := New(time.Minute)
	s := m.GetOrCreate("")
	assert.NotEmpty(t, s.ID)
}

func TestGet_ExpiredSessionIsReapedAndMintsNewOnNextPost(t *testing.T) {
	m := New(1 * time.Millisecond)
	s := m.Create()
	time.Sleep(5 * time.Millisecond)

	_, ok := m.Get(s.ID)
	assert.False(t, ok)

	fresh := m.GetOrCreate(s.ID)
	assert.NotEqual(t, s.ID, fresh.ID)
}

func TestDelete(t *testing.T) {
	m := New(time.Minute)
	s := m.Create()

	assert.True(t, m.Delete(s.ID))
	assert.False(t, m.Delete(s.ID))

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestTouch_RecordsClientCapabilities(t *testing.T) {
	m := New(time.Minute)
	s := m.Create()

	m.Touch(s.ID, []byte(`{"tools":{}}`))
	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.JSONEq(t, `{"tools":{}}`, string(got.ClientCapabilities))
}

func TestCount(t *testing.T) {
	m := New(time.Minute)
	assert.Equal(t, 0, m.Count())
	m.Create()
	m.Create()
	assert.Equal(t, 2, m.Count())
}
