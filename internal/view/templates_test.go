package view

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/login.html", TemplateData{
		Title:     "Sign in",
		CSRFToken: "tok",
		Data: struct {
			Form   struct{ Email string }
			Errors map[string]string
		}{},
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(rr.Body.String(), "<form"))
	assert.True(t, strings.Contains(rr.Body.String(), "tok"))
}
