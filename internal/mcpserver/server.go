// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Fiche tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/crmservice"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/store"
)

const fieldTypesURI = "fiche://field-types"

// Server wraps the MCP server with Fiche tools. Every call runs as one
// fixed identity.
type Server struct {
	mcp *server.MCPServer
	svc *crmservice.Service
	id  models.Identity
}

// New creates a new MCP server with all Fiche tools registered.
func New(svc *crmservice.Service, id models.Identity) *Server {
	s := &Server{svc: svc, id: id}

	s.mcp = server.NewMCPServer(
		"Fiche",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List record templates, optionally for one company or activity."),
		mcp.WithString("company_id", mcp.Description("Optional company id")),
		mcp.WithString("activity_id", mcp.Description("Optional activity id")),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("get_template",
		mcp.WithDescription("Get a template with its ordered field list."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Template id")),
	), s.getTemplate)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List the most recently updated records of a template."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Template id")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Full-text search through record values."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("template_id", mcp.Description("Restrict to one template")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("create_record",
		mcp.WithDescription("Create a record from field values keyed by field name. "+
			"Values are validated like a submitted form. Read the field type contract "+
			"first via the get_field_types tool or the "+fieldTypesURI+" resource."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Template id")),
		mcp.WithObject("data", mcp.Required(), mcp.Description("Field values keyed by field name")),
	), s.createRecord)

	s.mcp.AddTool(mcp.NewTool("attach_document",
		mcp.WithDescription("Download a PDF or image (http(s) URL or base64 data URI) "+
			"and append it to a file field of an existing record."),
		mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Name of a file_list field")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Document URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional file name")),
	), s.attachDocument)

	s.mcp.AddTool(mcp.NewTool("lookup_company",
		mcp.WithDescription("Look a company identifier (SIRET/SIREN) up in the business registry."),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("Company identifier")),
	), s.lookupCompany)

	s.mcp.AddTool(mcp.NewTool("get_field_types",
		mcp.WithDescription("Returns the field type contract: which value each field type expects."),
	), s.getFieldTypes)

	// Resource: field type contract.
	s.mcp.AddResource(
		mcp.NewResource(fieldTypesURI, "Field Types",
			mcp.WithResourceDescription("Field types a template may use and the record value each expects."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFieldTypesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// errorResult renders err for the model. Validation failures list every
// failing field so the call can be corrected in one go.
func errorResult(err error) *mcp.CallToolResult {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		lines := make([]string, len(ve.Violations))
		for i, v := range ve.Violations {
			lines[i] = fmt.Sprintf("- %s: %s", v.Field, v.Message)
		}
		return mcp.NewToolResultError("validation failed:\n" + strings.Join(lines, "\n"))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.ListTemplates(ctx, s.id, store.TemplateFilter{
		CompanyID:  req.GetString("company_id", ""),
		ActivityID: req.GetString("activity_id", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(list), nil
}

func (s *Server) getTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tpl, err := s.svc.GetTemplate(ctx, s.id, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tpl), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, total, err := s.svc.ListRecords(ctx, s.id, store.RecordFilter{
		TemplateID: id,
		Limit:      req.GetInt("limit", 0),
		Offset:     req.GetInt("offset", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"records": records, "total": total}), nil
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchRecords(ctx, s.id, req.GetString("template_id", ""), query, 20)
	if err != nil {
		return errorResult(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no records found"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) createRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, ok := req.GetArguments()["data"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("data must be an object keyed by field name"), nil
	}
	rec, err := s.svc.CreateRecord(ctx, s.id, id, models.Data(data))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) lookupCompany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.LookupCompany(ctx, identifier)
	if err != nil {
		return errorResult(err), nil
	}
	if info == nil {
		return mcp.NewToolResultText("no company found"), nil
	}
	return jsonResult(info), nil
}

func (s *Server) getFieldTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FieldTypesContract), nil
}

func (s *Server) readFieldTypesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      fieldTypesURI,
			MIMEType: "text/markdown",
			Text:     FieldTypesContract,
		},
	}, nil
}
