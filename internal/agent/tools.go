package agent

import (
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// errExternalDispatch guards the genkit tool shells. The shells exist only so
// the model sees tool schemas; real execution always goes through the
// registry's dispatch table, and genkit returns requests to the loop instead
// of invoking handlers.
var errExternalDispatch = errors.New("tool is dispatched outside genkit")

// searchToolInput mirrors the search_documents registry input.
type searchToolInput struct {
	Query string `json:"query" jsonschema:"description=What to search the documents for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Number of passages to return (1-20)"`
}

// editToolInput mirrors the edit_document registry input, minus the document
// field the loop injects.
type editToolInput struct {
	Mode        string `json:"mode,omitempty" jsonschema:"enum=replace,enum=append,enum=substitute,description=How to apply the edit"`
	Content     string `json:"content,omitempty" jsonschema:"description=New content for replace or append"`
	Find        string `json:"find,omitempty" jsonschema:"description=Text to replace in substitute mode"`
	ReplaceWith string `json:"replace_with,omitempty" jsonschema:"description=Replacement text in substitute mode"`
}

// uploadToolInput mirrors the issue_upload_url registry input, minus the
// owner field the loop injects.
type uploadToolInput struct {
	Filename string `json:"filename" jsonschema:"description=Name of the file the user wants to upload"`
}

// DefineChatToolRefs declares the general chat agent's tools with genkit.
func DefineChatToolRefs(g *genkit.Genkit, reg *tools.Registry) ([]ai.ToolRef, error) {
	ref, err := defineShell[uploadToolInput](g, reg, tools.UploadURLToolName)
	if err != nil {
		return nil, err
	}
	return []ai.ToolRef{ref}, nil
}

// DefineSearchToolRefs declares the search agent's tools with genkit.
func DefineSearchToolRefs(g *genkit.Genkit, reg *tools.Registry) ([]ai.ToolRef, error) {
	ref, err := defineShell[searchToolInput](g, reg, tools.SearchToolName)
	if err != nil {
		return nil, err
	}
	return []ai.ToolRef{ref}, nil
}

// DefineEditToolRefs declares the edit agent's tools with genkit.
func DefineEditToolRefs(g *genkit.Genkit, reg *tools.Registry) ([]ai.ToolRef, error) {
	ref, err := defineShell[editToolInput](g, reg, tools.EditToolName)
	if err != nil {
		return nil, err
	}
	return []ai.ToolRef{ref}, nil
}

func defineShell[In any](g *genkit.Genkit, reg *tools.Registry, name string) (ai.ToolRef, error) {
	t, ok := reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tool %s not registered", name)
	}
	shell := genkit.DefineTool(g, name, t.Description(),
		func(*ai.ToolContext, In) (string, error) {
			return "", errExternalDispatch
		})
	return shell, nil
}
