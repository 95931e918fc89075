package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/fiche/internal/crmservice"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/session"
	"github.com/starford/fiche/internal/testutil"
)

type testEnv struct {
	srv *Server
	tpl *models.Template
}

func testServer(t *testing.T) testEnv {
	t.Helper()

	db := testutil.TestDB(t)
	_, files := testutil.TestFiles(t)
	tn := testutil.SeedTenant(t, db, "Acme", "Isolation")
	tpl := testutil.SeedTemplate(t, db, tn, "Dossier client",
		models.Field{Name: "Raison sociale", Type: models.ShortText, Required: true},
		models.Field{Name: "Surface", Type: models.Number},
		models.Field{Name: "Pièces", Type: models.FileList},
	)

	svc := crmservice.New(crmservice.Deps{
		DB:       db,
		Files:    files,
		Sessions: session.NewMemory(time.Hour),
	})
	return testEnv{srv: New(svc, tn.Admin()), tpl: tpl}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are invoked directly.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "list_templates":
		result, err = srv.listTemplates(ctx, req)
	case "get_template":
		result, err = srv.getTemplate(ctx, req)
	case "list_records":
		result, err = srv.listRecords(ctx, req)
	case "search_records":
		result, err = srv.searchRecords(ctx, req)
	case "create_record":
		result, err = srv.createRecord(ctx, req)
	case "attach_document":
		result, err = srv.attachDocument(ctx, req)
	case "lookup_company":
		result, err = srv.lookupCompany(ctx, req)
	case "get_field_types":
		result, err = srv.getFieldTypes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndListRecords(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "create_record", map[string]any{
		"template_id": env.tpl.ID,
		"data":        map[string]any{"Raison sociale": "Soleil SARL", "Surface": "12,5"},
	})
	if r.IsError {
		t.Fatalf("create_record: %s", resultText(r))
	}
	var rec models.Record
	if err := json.Unmarshal([]byte(resultText(r)), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Data["Raison sociale"] != "Soleil SARL" {
		t.Errorf("data = %v", rec.Data)
	}

	r = callTool(t, env.srv, "list_records", map[string]any{"template_id": env.tpl.ID})
	if r.IsError || !strings.Contains(resultText(r), `"total": 1`) {
		t.Errorf("list_records = %s", resultText(r))
	}

	r = callTool(t, env.srv, "search_records", map[string]any{"query": "Soleil", "template_id": env.tpl.ID})
	if r.IsError || !strings.Contains(resultText(r), rec.ID) {
		t.Errorf("search_records = %s", resultText(r))
	}
}

func TestCreateRecordReportsViolations(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "create_record", map[string]any{
		"template_id": env.tpl.ID,
		"data":        map[string]any{"Surface": "beaucoup"},
	})
	if !r.IsError {
		t.Fatal("expected validation error")
	}
	text := resultText(r)
	for _, want := range []string{"Raison sociale", "Surface"} {
		if !strings.Contains(text, want) {
			t.Errorf("error %q does not mention %s", text, want)
		}
	}
}

func TestCreateRecordRequiresObject(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "create_record", map[string]any{
		"template_id": env.tpl.ID,
		"data":        "Raison sociale=Soleil",
	})
	if !r.IsError {
		t.Error("expected error for non-object data")
	}
}

func TestGetTemplate(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "get_template", map[string]any{"template_id": env.tpl.ID})
	if r.IsError || !strings.Contains(resultText(r), "Dossier client") {
		t.Errorf("get_template = %s", resultText(r))
	}

	r = callTool(t, env.srv, "get_template", map[string]any{"template_id": "missing"})
	if !r.IsError {
		t.Error("expected error for missing template")
	}

	r = callTool(t, env.srv, "list_templates", map[string]any{})
	if r.IsError || !strings.Contains(resultText(r), env.tpl.ID) {
		t.Errorf("list_templates = %s", resultText(r))
	}
}

func TestAttachDocumentDataURI(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "create_record", map[string]any{
		"template_id": env.tpl.ID,
		"data":        map[string]any{"Raison sociale": "Soleil SARL"},
	})
	var rec models.Record
	if err := json.Unmarshal([]byte(resultText(r)), &rec); err != nil {
		t.Fatal(err)
	}

	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7\n%%EOF\n"))
	r = callTool(t, env.srv, "attach_document", map[string]any{
		"record_id": rec.ID,
		"field":     "Pièces",
		"url":       "data:application/pdf;base64," + pdf,
		"filename":  "devis.pdf",
	})
	if r.IsError {
		t.Fatalf("attach_document: %s", resultText(r))
	}
	var out attachResult
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Files) != 1 || !strings.HasSuffix(out.Files[0], "devis.pdf") {
		t.Errorf("files = %v", out.Files)
	}

	// A non file field is rejected.
	r = callTool(t, env.srv, "attach_document", map[string]any{
		"record_id": rec.ID,
		"field":     "Surface",
		"url":       "data:application/pdf;base64," + pdf,
	})
	if !r.IsError {
		t.Error("expected error for non file field")
	}
}

func TestAttachDocumentRejectsMismatch(t *testing.T) {
	env := testServer(t)
	png := base64.StdEncoding.EncodeToString([]byte("not really an image"))
	r := callTool(t, env.srv, "attach_document", map[string]any{
		"record_id": "any",
		"field":     "Pièces",
		"url":       "data:image/png;base64," + png,
	})
	if !r.IsError || !strings.Contains(resultText(r), "does not match") {
		t.Errorf("attach_document = %s", resultText(r))
	}
}

func TestAttachDocumentRefusesInternalURL(t *testing.T) {
	env := testServer(t)
	for _, u := range []string{
		"http://169.254.169.254/latest/meta-data/doc.pdf",
		"http://metadata.google.internal/doc.pdf",
		"file:///etc/passwd",
	} {
		r := callTool(t, env.srv, "attach_document", map[string]any{
			"record_id": "any",
			"field":     "Pièces",
			"url":       u,
		})
		if !r.IsError {
			t.Errorf("attach_document(%s) succeeded", u)
		}
	}
}

func TestLookupCompanyDisabled(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "lookup_company", map[string]any{"identifier": "40483304800022"})
	if !r.IsError {
		t.Error("expected error without a registry")
	}
}

func TestFieldTypesContract(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "get_field_types", nil)
	for _, ft := range []models.FieldType{models.ShortText, models.FileList, models.SectionHeader} {
		if !strings.Contains(resultText(r), ft.WireName()) {
			t.Errorf("contract does not list %s", ft.WireName())
		}
	}
}
