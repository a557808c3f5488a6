// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nbhugo notebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/notebook"
)

// MetadataURI is the resource URI of the metadata contract.
const MetadataURI = "nbhugo://notebook-metadata"

// Server wraps the MCP server with nbhugo tools.
type Server struct {
	mcp *server.MCPServer
	svc *blog.Service
}

// New creates a new MCP server with all nbhugo tools registered.
func New(svc *blog.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nbhugo",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List the notebooks of the blog with their front matter and rendered posts."),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("inspect_notebook",
		mcp.WithDescription("Show front matter, render destination, cell counts and rendered artifacts of one notebook."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook file name (e.g. my-post.ipynb)")),
	), s.inspectNotebook)

	s.mcp.AddTool(mcp.NewTool("render_notebook",
		mcp.WithDescription("Render a notebook into the Hugo site. The notebook must carry front matter; "+
			"call update_metadata first for new notebooks."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook file name")),
		mcp.WithString("dest", mcp.Description("Optional content directory override (e.g. content/blog/)")),
	), s.renderNotebook)

	s.mcp.AddTool(mcp.NewTool("update_metadata",
		mcp.WithDescription("Stamp the nbhugo metadata block of a notebook. Omitted fields keep their stored "+
			"value or get defaults. Read the contract via get_metadata_contract or the "+MetadataURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook file name")),
		mcp.WithString("title", mcp.Description("Post title")),
		mcp.WithString("subtitle", mcp.Description("Post subtitle")),
		mcp.WithString("date", mcp.Description("Post date, YYYY-MM-DD")),
		mcp.WithString("slug", mcp.Description("URL slug, also the notebook file name stem")),
		mcp.WithString("toc", mcp.Description(`"true" or "false"`)),
		mcp.WithString("render_to", mcp.Description("Content directory, e.g. content/post/")),
	), s.updateMetadata)

	s.mcp.AddTool(mcp.NewTool("import_notebook",
		mcp.WithDescription("Import a notebook from an http(s) URL or a base64 data URI into the notebooks directory."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/x-ipynb+json;base64,... URI")),
		mcp.WithString("name", mcp.Description("Optional notebook file name")),
	), s.importNotebook)

	s.mcp.AddTool(mcp.NewTool("get_metadata_contract",
		mcp.WithDescription("Returns the notebook metadata contract nbhugo reads front matter from."),
	), s.getMetadataContract)

	s.mcp.AddResource(
		mcp.NewResource(MetadataURI, "Notebook Metadata Contract",
			mcp.WithResourceDescription("Notebook metadata keys nbhugo reads and writes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMetadataResource,
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

func (s *Server) listNotebooks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListNotebooks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no notebooks found"), nil
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := it.Path
		if it.Stamped {
			line += fmt.Sprintf("\t%s\t%s", it.Slug, it.RenderTo)
		} else {
			line += "\t(no front matter)"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) inspectNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, res := s.notebookArg(req)
	if res != nil {
		return res, nil
	}
	detail, err := s.svc.GetNotebook(ctx, p)
	if err != nil {
		return toolError(p, err), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) renderNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, res := s.notebookArg(req)
	if res != nil {
		return res, nil
	}
	a, err := s.svc.Render(ctx, p, req.GetString("dest", ""))
	if err != nil {
		return toolError(p, err), nil
	}
	out, _ := json.MarshalIndent(a, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) updateMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, res := s.notebookArg(req)
	if res != nil {
		return res, nil
	}
	changed, err := s.svc.UpdateMetadata(ctx, p, notebook.Overrides{
		Title:    req.GetString("title", ""),
		Subtitle: req.GetString("subtitle", ""),
		Date:     req.GetString("date", ""),
		Slug:     req.GetString("slug", ""),
		TOC:      req.GetString("toc", ""),
		RenderTo: req.GetString("render_to", ""),
	})
	if err != nil {
		return toolError(p, err), nil
	}
	if !changed {
		return mcp.NewToolResultText(fmt.Sprintf("unchanged: %s", p)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", p)), nil
}

func (s *Server) getMetadataContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MetadataContract), nil
}

func (s *Server) readMetadataResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      MetadataURI,
			MIMEType: "text/markdown",
			Text:     MetadataContract,
		},
	}, nil
}

// notebookArg resolves the required "name" argument to a notebook path.
func (s *Server) notebookArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	name, err := req.RequireString("name")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	p := s.svc.NotebookPath(name)
	if notebook.Ignored(p) {
		return "", mcp.NewToolResultError(fmt.Sprintf("ignored notebook name: %s", name))
	}
	return p, nil
}

func toolError(p string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", p))
	}
	return mcp.NewToolResultError(err.Error())
}
