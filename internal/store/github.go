package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	appLog "scoopcms/internal/log"
)

// GitHub stores documents as files in a GitHub repository branch via the
// Contents API. The blob sha doubles as the revision token: the API
// rejects writes whose sha no longer matches, which is exactly the
// compare-and-swap contract Store requires.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// GitHubOptions holds the repository coordinates for a GitHub store.
type GitHubOptions struct {
	Owner  string
	Repo   string
	Branch string
	Token  string
}

// NewGitHub builds a GitHub-backed store. The token is used as a bearer
// credential for every request.
func NewGitHub(ctx context.Context, opts GitHubOptions) *GitHub {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	hc := oauth2.NewClient(ctx, ts)

	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}

	return &GitHub{
		client: github.NewClient(hc),
		owner:  opts.Owner,
		repo:   opts.Repo,
		branch: branch,
	}
}

func (g *GitHub) List(ctx context.Context, dir string) ([]Entry, error) {
	_, dirContent, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, dir,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return nil, g.wrapErr("list "+dir, resp, err)
	}
	if dirContent == nil {
		return nil, fmt.Errorf("list %s: path is a file, not a directory", dir)
	}

	entries := make([]Entry, 0, len(dirContent))
	for _, c := range dirContent {
		if c.GetType() != "file" {
			continue
		}
		entries = append(entries, Entry{
			Name:     c.GetName(),
			Path:     c.GetPath(),
			Revision: c.GetSHA(),
		})
	}
	return entries, nil
}

func (g *GitHub) Read(ctx context.Context, path string) (Document, error) {
	fileContent, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return Document{}, g.wrapErr("read "+path, resp, err)
	}
	if fileContent == nil {
		return Document{}, fmt.Errorf("read %s: path is a directory, not a file", path)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return Document{}, fmt.Errorf("read %s: decode content: %w", path, err)
	}

	return Document{
		Path:     path,
		Content:  []byte(content),
		Revision: fileContent.GetSHA(),
	}, nil
}

func (g *GitHub) Write(ctx context.Context, path string, content []byte, expectedRevision, message string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(g.branch),
	}

	var (
		result *github.RepositoryContentResponse
		resp   *github.Response
		err    error
	)
	if expectedRevision == "" {
		result, resp, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		opts.SHA = github.String(expectedRevision)
		result, resp, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	}
	if err != nil {
		return "", g.wrapErr("write "+path, resp, err)
	}

	appLog.Debug("github write committed", "path", path, "commit", result.Commit.GetSHA())
	return result.Content.GetSHA(), nil
}

func (g *GitHub) Delete(ctx context.Context, path, expectedRevision, message string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(expectedRevision),
		Branch:  github.String(g.branch),
	}

	_, resp, err := g.client.Repositories.DeleteFile(ctx, g.owner, g.repo, path, opts)
	if err != nil {
		return g.wrapErr("delete "+path, resp, err)
	}
	return nil
}

// wrapErr maps GitHub API failures onto the store's sentinel errors.
// 409 is a branch-level conflict; 422 is how the Contents API reports a
// stale blob sha.
func (g *GitHub) wrapErr(op string, resp *github.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
