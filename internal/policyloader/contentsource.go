package policyloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v56/github"
	"gopkg.in/yaml.v3"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
)

// ContentSource fetches an opaque ruleset document by its content-ref and
// parses it into the top-level {"policies": [...]} shape. Implementations
// auto-detect JSON vs. YAML encoding by content sniffing; published
// ruleset objects are not uniformly one or the other.
type ContentSource interface {
	Fetch(ctx context.Context, contentRef string) (model.RulesetContent, error)
}

func parseRulesetBytes(raw []byte) (model.RulesetContent, error) {
	trimmed := bytes.TrimSpace(raw)
	var content model.RulesetContent
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return content, fmt.Errorf("parse ruleset json: %w", err)
		}
		return content, nil
	}
	if err := yaml.Unmarshal(trimmed, &content); err != nil {
		return content, fmt.Errorf("parse ruleset yaml: %w", err)
	}
	return content, nil
}

// HTTPContentSource fetches ruleset documents over plain HTTP(S).
type HTTPContentSource struct {
	Client *http.Client
}

func NewHTTPContentSource() *HTTPContentSource {
	return &HTTPContentSource{Client: http.DefaultClient}
}

func (s *HTTPContentSource) Fetch(ctx context.Context, contentRef string) (model.RulesetContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentRef, nil)
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("build ruleset request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("fetch ruleset %s: %w", contentRef, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return model.RulesetContent{}, fmt.Errorf("fetch ruleset %s: status %d", contentRef, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("read ruleset %s: %w", contentRef, err)
	}
	return parseRulesetBytes(body)
}

// ObjectStoreContentSource fetches ruleset documents from the configured
// ObjectStore.
type ObjectStoreContentSource struct {
	Store objectstore.ObjectStore
}

func (s *ObjectStoreContentSource) Fetch(ctx context.Context, contentRef string) (model.RulesetContent, error) {
	raw, err := s.Store.Get(ctx, contentRef)
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("fetch ruleset %s: %w", contentRef, err)
	}
	return parseRulesetBytes(raw)
}

// GitHubContentSource fetches ruleset documents published as files in a
// Git-hosted content repository.
//
// contentRef is of the form "owner/repo@ref:path/to/ruleset.json".
type GitHubContentSource struct {
	Client *github.Client
}

func NewGitHubContentSource(client *github.Client) *GitHubContentSource {
	if client == nil {
		client = github.NewClient(nil)
	}
	return &GitHubContentSource{Client: client}
}

func (s *GitHubContentSource) Fetch(ctx context.Context, contentRef string) (model.RulesetContent, error) {
	owner, repo, ref, path, err := parseGitHubContentRef(contentRef)
	if err != nil {
		return model.RulesetContent{}, err
	}

	fileContent, _, _, err := s.Client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("fetch ruleset %s: %w", contentRef, err)
	}
	if fileContent == nil {
		return model.RulesetContent{}, fmt.Errorf("fetch ruleset %s: not a file", contentRef)
	}
	raw, err := fileContent.GetContent()
	if err != nil {
		return model.RulesetContent{}, fmt.Errorf("decode ruleset %s: %w", contentRef, err)
	}
	return parseRulesetBytes([]byte(raw))
}

func parseGitHubContentRef(contentRef string) (owner, repo, ref, path string, err error) {
	ownerRepoAndRest, pathPart, ok := strings.Cut(contentRef, ":")
	if !ok {
		return "", "", "", "", fmt.Errorf("invalid github content-ref %q: missing ':path'", contentRef)
	}
	ownerRepo := ownerRepoAndRest
	ref = ""
	if withRef, r, ok := strings.Cut(ownerRepoAndRest, "@"); ok {
		ownerRepo = withRef
		ref = r
	}
	o, r2, ok := strings.Cut(ownerRepo, "/")
	if !ok {
		return "", "", "", "", fmt.Errorf("invalid github content-ref %q: missing 'owner/repo'", contentRef)
	}
	return o, r2, ref, pathPart, nil
}
