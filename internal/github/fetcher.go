package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// importable lists the file extensions fetched from repository directories.
var importable = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".pdf":      true,
}

// Ref addresses a file or directory in a repository.
type Ref struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // Branch, tag or commit; empty means the default branch
}

func (r Ref) String() string {
	s := path.Join(r.Owner, r.Repo, r.Path)
	if r.Ref != "" {
		s += "@" + r.Ref
	}
	return s
}

// ParseRef parses "owner/repo/path[@ref]".
func ParseRef(s string) (Ref, error) {
	var ref Ref
	if i := strings.LastIndex(s, "@"); i >= 0 {
		ref.Ref = s[i+1:]
		s = s[:i]
	}
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid github reference %q, expected owner/repo/path", s)
	}
	ref.Owner, ref.Repo = parts[0], parts[1]
	if len(parts) == 3 {
		ref.Path = parts[2]
	}
	return ref, nil
}

// FetchedDoc represents a document fetched from GitHub
type FetchedDoc struct {
	Path    string // Path within the repository
	Content []byte
	SHA     string // File's Git blob SHA
	URL     string // Download URL
}

// Name returns the file name of the document.
func (d *FetchedDoc) Name() string {
	return path.Base(d.Path)
}

// Fetcher handles fetching documents from GitHub repositories
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

func (f *Fetcher) options(ref Ref) *github.RepositoryContentGetOptions {
	if ref.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: ref.Ref}
}

// Fetch returns the document at ref, or every importable document below it
// when ref names a directory.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref) ([]*FetchedDoc, error) {
	fileContent, dirContents, _, err := f.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, f.options(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", ref, err)
	}
	if fileContent != nil {
		doc, err := toFetchedDoc(fileContent)
		if err != nil {
			return nil, err
		}
		return []*FetchedDoc{doc}, nil
	}

	paths, err := f.listDocsRecursive(ctx, ref, dirContents)
	if err != nil {
		return nil, err
	}

	docs := make([]*FetchedDoc, 0, len(paths))
	for _, p := range paths {
		fileRef := ref
		fileRef.Path = p
		doc, err := f.FetchDoc(ctx, fileRef)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ListDocs recursively lists importable files below the directory at ref.
func (f *Fetcher) ListDocs(ctx context.Context, ref Ref) ([]string, error) {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, f.options(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", ref, err)
	}
	return f.listDocsRecursive(ctx, ref, dirContents)
}

// listDocsRecursive recursively traverses directories to find importable files
func (f *Fetcher) listDocsRecursive(ctx context.Context, ref Ref, dirContents []*github.RepositoryContent) ([]string, error) {
	var docs []string

	for _, item := range dirContents {
		switch item.GetType() {
		case "file":
			if importable[strings.ToLower(path.Ext(item.GetName()))] {
				docs = append(docs, item.GetPath())
			}

		case "dir":
			sub := ref
			sub.Path = item.GetPath()
			_, subContents, _, err := f.client.Repositories.GetContents(ctx, sub.Owner, sub.Repo, sub.Path, f.options(sub))
			if err != nil {
				return nil, fmt.Errorf("failed to get contents of %s: %w", sub, err)
			}
			subDocs, err := f.listDocsRecursive(ctx, sub, subContents)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of a single file
func (f *Fetcher) FetchDoc(ctx context.Context, ref Ref) (*FetchedDoc, error) {
	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, f.options(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", ref, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is not a file", ref)
	}
	return toFetchedDoc(fileContent)
}

func toFetchedDoc(fc *github.RepositoryContent) (*FetchedDoc, error) {
	// Decodes the base64 payload
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fc.GetPath(), err)
	}
	return &FetchedDoc{
		Path:    fc.GetPath(),
		Content: []byte(content),
		SHA:     fc.GetSHA(),
		URL:     fc.GetDownloadURL(),
	}, nil
}
