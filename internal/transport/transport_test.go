package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func toMap(envStrings []string) map[string]string {
	out := make(map[string]string, len(envStrings))
	for _, kv := range envStrings {
		parts := strings.SplitN(kv, "=", 2)
		out[parts[0]] = parts[1]
	}
	return out
}

func TestSanitizeEnv_AppliesSuppressionDefaults(t *testing.T) {
	env := toMap(SanitizeEnv(nil))

	assert.Equal(t, "1", env["NO_COLOR"])
	assert.Equal(t, "0", env["FORCE_COLOR"])
	assert.Equal(t, "1", env["NO_UPDATE_NOTIFIER"])
	assert.Equal(t, "1", env["CI"])
}

func TestSanitizeEnv_UserValuesOverrideDefaults(t *testing.T) {
	env := toMap(SanitizeEnv(map[string]string{"FORCE_COLOR": "1", "MY_VAR": "hello"}))

	assert.Equal(t, "1", env["FORCE_COLOR"], "user-supplied value must win over the suppression default")
	assert.Equal(t, "hello", env["MY_VAR"])
	assert.Equal(t, "1", env["NO_COLOR"], "defaults not overridden by the user stay in place")
}

func TestMergeHeaders_BothEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, MergeHeaders(nil, nil))
}

func TestMergeHeaders_PerRequestOverridesConfigured(t *testing.T) {
	configured := map[string]string{"Authorization": "Bearer static", "X-Static": "a"}
	perRequest := map[string]string{"Authorization": "Bearer dynamic"}

	merged := MergeHeaders(configured, perRequest)

	assert.Equal(t, "Bearer dynamic", merged["Authorization"])
	assert.Equal(t, "a", merged["X-Static"])
}

func TestMergeHeaders_ConfiguredOnly(t *testing.T) {
	configured := map[string]string{"X-Static": "a"}

	merged := MergeHeaders(configured, nil)

	assert.Equal(t, map[string]string{"X-Static": "a"}, merged)
}
