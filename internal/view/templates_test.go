package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineParsesEmbeddedTemplates(t *testing.T) {
	_, err := NewEngine()
	require.NoError(t, err)
}

func TestRenderListPage(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = e.Render(rec, "pages/suppliers_list.html", TemplateData{
		Title:    "Hi Technics Supplier Database",
		BasePath: "/supply-db",
		Data: map[string]any{
			"Suppliers":  nil,
			"All":        nil,
			"Filter":     struct{ Search, Supplier, Category string }{},
			"Categories": []string{"Supplier"},
		},
	})
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), "Hi Technics Supplier Database")
	require.Contains(t, rec.Body.String(), "No suppliers match")
}

func TestRenderEditPagePrefilled(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = e.Render(rec, "pages/supplier_edit.html", TemplateData{
		Title:    "Hi Technics Supplier Database",
		BasePath: "/supply-db",
		Data: map[string]any{
			"Categories": []string{"Supplier"},
			"Error":      "",
			"Draft":      struct{ Name, Origin, Category, Desc string }{Name: "Acme"},
			"EditID":     "abc",
		},
	})
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), "Update Supplier")
}
