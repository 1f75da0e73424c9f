package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogHandlerListsResourceActions(t *testing.T) {
	rec := httptest.NewRecorder()
	catalogHandler(rec, httptest.NewRequest("GET", "/catalog", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Name    string   `json:"name"`
		Label   string   `json:"label"`
		Actions []string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out)

	byName := make(map[string][]string, len(out))
	for _, entry := range out {
		assert.NotEmpty(t, entry.Label, "resource %q has no label", entry.Name)
		byName[entry.Name] = entry.Actions
	}

	assert.Contains(t, byName["bank_accounts"], "read")
	assert.Contains(t, byName["bank_accounts"], "configure")
	// UI-exempt resources keep only their declared actions.
	assert.Equal(t, []string{"access"}, byName["ui_menu"])
	assert.NotContains(t, byName["ui_component"], "manage")
}
