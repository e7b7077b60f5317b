package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UploadURLToolName is the dispatch key of the presigned-upload-URL tool.
const UploadURLToolName = "issue_upload_url"

// uploadURLTTL is how long issued upload URLs stay valid.
const uploadURLTTL = 15 * time.Minute

// Presigner issues presigned upload URLs for object storage.
// Implemented by objstore.Client.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// UploadURLTool lets the model hand the user a presigned URL for uploading
// a document, scoped to the requesting user's prefix. The owner_id input
// field is injected by the caller, never chosen by the model.
type UploadURLTool struct {
	presigner Presigner
}

// NewUploadURLTool creates the upload-URL tool.
func NewUploadURLTool(presigner Presigner) *UploadURLTool {
	return &UploadURLTool{presigner: presigner}
}

func (*UploadURLTool) Name() string { return UploadURLToolName }

func (*UploadURLTool) Description() string {
	return "Issue a presigned URL the user can PUT a file to. " +
		"Input: {\"filename\": string}."
}

type uploadURLInput struct {
	Filename string `json:"filename"`
	OwnerID  string `json:"owner_id"`
}

func (t *UploadURLTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in uploadURLInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("parsing upload input: %w", err)
	}

	name := strings.TrimSpace(in.Filename)
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid filename %q", in.Filename)
	}

	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return nil, fmt.Errorf("owner_id is required")
	}

	key := fmt.Sprintf("uploads/%s/%s", owner, name)
	url, err := t.presigner.PresignPut(ctx, key, uploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presigning upload URL: %w", err)
	}

	return &Result{
		Status: StatusSuccess,
		Artifact: map[string]any{
			"key":        key,
			"url":        url,
			"expires_in": uploadURLTTL.String(),
		},
		Content: "Upload URL (valid " + uploadURLTTL.String() + "): " + url,
	}, nil
}
