package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// VertexConfig controls a summarizer that routes through Vertex AI.
type VertexConfig struct {
	Project      string
	Location     string
	Model        string
	MaxTokens    int
	Temperature  *float64
	Instructions string
	// TokenSource overrides Application Default Credentials.
	TokenSource oauth2.TokenSource
}

// NewVertex constructs a summarizer that uses Vertex AI as the backend.
// Authentication uses Google Application Default Credentials unless
// cfg.TokenSource is set.
func NewVertex(ctx context.Context, cfg VertexConfig) (client *Client, err error) {
	project := strings.TrimSpace(cfg.Project)
	model := strings.TrimSpace(cfg.Model)
	if project == "" || model == "" {
		return nil, errors.New("anthropic vertex: project and model are required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-east5"
	}

	// The SDK's vertex helpers panic on credential errors instead of returning them.
	defer func() {
		if r := recover(); r != nil {
			client = nil
			err = fmt.Errorf("anthropic vertex: %v", r)
		}
	}()

	var vertexOpt option.RequestOption
	if cfg.TokenSource != nil {
		vertexOpt = vertex.WithCredentials(ctx, location, project, &google.Credentials{
			ProjectID:   project,
			TokenSource: cfg.TokenSource,
		})
	} else {
		vertexOpt = vertex.WithGoogleAuth(ctx, location, project)
	}

	return newClient(sdk.NewClient(vertexOpt), model, cfg.MaxTokens, cfg.Temperature, cfg.Instructions), nil
}
