package patch

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type table struct {
	Greet func(string) string
	Count func() int
	plain int
	hide  func()
}

type upper struct{ prefix string }

func (u upper) Shout(s string) string { return u.prefix + strings.ToUpper(s) }

func TestVarInstallAndRevert(t *testing.T) {
	greet := func(s string) string { return "hello " + s }
	s, err := Var(&greet)
	require.NoError(t, err)

	e := New()
	r, err := e.Install(s, reflect.ValueOf(func(s string) string { return "bye " + s }))
	require.NoError(t, err)
	assert.True(t, r.Active())
	assert.Equal(t, "bye x", greet("x"))

	e.Revert(r)
	assert.Equal(t, "hello x", greet("x"))
	assert.True(t, r.Reverted())
	assert.False(t, r.Active())

	e.Revert(r)
	assert.Equal(t, "hello x", greet("x"))
}

func TestMemberSlot(t *testing.T) {
	tb := &table{Greet: func(s string) string { return s }}
	s, err := Member(tb, "Greet")
	require.NoError(t, err)
	assert.Equal(t, "patch.table.Greet", s.String())

	e := New()
	r, err := e.Install(s, reflect.ValueOf(upper{prefix: "!"}).MethodByName("Shout"))
	require.NoError(t, err)
	assert.Equal(t, "!ABC", tb.Greet("abc"))
	e.Revert(r)
	assert.Equal(t, "abc", tb.Greet("abc"))
}

func TestNilOriginalIsRestored(t *testing.T) {
	tb := &table{}
	s, err := Member(tb, "Count")
	require.NoError(t, err)
	e := New()
	r, err := e.Install(s, reflect.ValueOf(func() int { return 3 }))
	require.NoError(t, err)
	assert.Equal(t, 3, tb.Count())
	e.Revert(r)
	assert.Nil(t, tb.Count)
}

func TestConvertibleSignature(t *testing.T) {
	type counter func() int
	tb := &table{}
	s, err := Member(tb, "Count")
	require.NoError(t, err)
	_, err = New().Install(s, reflect.ValueOf(counter(func() int { return 9 })))
	require.NoError(t, err)
	assert.Equal(t, 9, tb.Count())
}

func TestInstallRejects(t *testing.T) {
	tb := &table{}
	s, err := Member(tb, "Count")
	require.NoError(t, err)
	e := New()

	_, err = e.Install(s, reflect.ValueOf(func() string { return "" }))
	assert.ErrorIs(t, err, ErrSignature)

	_, err = e.Install(s, reflect.ValueOf(42))
	assert.ErrorIs(t, err, ErrSignature)

	var nilFn func() int
	_, err = e.Install(s, reflect.ValueOf(nilFn))
	assert.ErrorIs(t, err, ErrNilTarget)

	_, err = e.Install(Slot{}, reflect.ValueOf(func() int { return 0 }))
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSlotErrors(t *testing.T) {
	tb := &table{}
	_, err := Member(tb, "plain")
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = Member(tb, "hide")
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = Member(tb, "Missing")
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = Member(*tb, "Greet")
	assert.ErrorIs(t, err, ErrInvalidSlot)
	n := 1
	_, err = Var(&n)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = Field(reflect.ValueOf(*tb), 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}
