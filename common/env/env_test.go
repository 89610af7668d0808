package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStringFallsBackOnBlank(t *testing.T) {
	t.Setenv("TAKAHOME_TEST_STR", "   ")
	assert.Equal(t, "fallback", String("TAKAHOME_TEST_STR", "fallback"))

	t.Setenv("TAKAHOME_TEST_STR", "value")
	assert.Equal(t, "value", String("TAKAHOME_TEST_STR", "fallback"))
}

func TestIntRejectsNonPositive(t *testing.T) {
	t.Setenv("TAKAHOME_TEST_INT", "-3")
	assert.Equal(t, 5, Int("TAKAHOME_TEST_INT", 5))

	t.Setenv("TAKAHOME_TEST_INT", "abc")
	assert.Equal(t, 5, Int("TAKAHOME_TEST_INT", 5))

	t.Setenv("TAKAHOME_TEST_INT", "12")
	assert.Equal(t, 12, Int("TAKAHOME_TEST_INT", 5))
}

func TestBool(t *testing.T) {
	t.Setenv("TAKAHOME_TEST_BOOL", "false")
	assert.False(t, Bool("TAKAHOME_TEST_BOOL", true))

	t.Setenv("TAKAHOME_TEST_BOOL", "nope")
	assert.True(t, Bool("TAKAHOME_TEST_BOOL", true))
}

func TestMillis(t *testing.T) {
	t.Setenv("TAKAHOME_TEST_MS", "250")
	assert.Equal(t, 250*time.Millisecond, Millis("TAKAHOME_TEST_MS", time.Second))

	t.Setenv("TAKAHOME_TEST_MS", "")
	assert.Equal(t, time.Second, Millis("TAKAHOME_TEST_MS", time.Second))
}

func TestCSVDedupesAndTrims(t *testing.T) {
	t.Setenv("TAKAHOME_TEST_CSV", " a, b ,a,, c ")
	assert.Equal(t, []string{"a", "b", "c"}, CSV("TAKAHOME_TEST_CSV", []string{"x"}))

	t.Setenv("TAKAHOME_TEST_CSV", " , ")
	assert.Equal(t, []string{"x"}, CSV("TAKAHOME_TEST_CSV", []string{"x"}))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a, ,b,a "))
	assert.Empty(t, SplitCSV("  "))
}
