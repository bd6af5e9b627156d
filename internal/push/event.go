// Package push models the subset of a GitHub push webhook payload that drives check runs.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyntax marks a body that is not valid JSON.
	ErrSyntax = errors.New("push payload is not valid JSON")

	// ErrShape marks valid JSON missing required fields or carrying wrong types.
	ErrShape = errors.New("push payload has invalid shape")

	// ErrRepositoryName marks a repository full_name not in "owner/repo" form.
	ErrRepositoryName = errors.New("repository full_name is not owner/repo")
)

// Event is a parsed push delivery. It is not modified after Decode.
type Event struct {
	Ref        *string
	Commits    []Commit
	Repository Repository
}

// Commit is one entry of the push. ID is the head SHA the check run attaches to.
type Commit struct {
	ID      string
	Message string
	Author  Author
}

// Author identifies who wrote a commit.
type Author struct {
	Name  string
	Email string
}

// Repository identifies the repository the push belongs to.
type Repository struct {
	Name     string
	FullName string
}

// Split returns (owner, repo) when FullName splits on "/" into exactly two non-empty parts.
func (r Repository) Split() (string, string, error) {
	parts := strings.Split(r.FullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrRepositoryName, r.FullName)
	}
	return parts[0], parts[1], nil
}

// wire types use pointers so missing required fields can be told apart from empty ones.
type wireEvent struct {
	Ref        *string         `json:"ref"`
	Commits    []wireCommit    `json:"commits"`
	Repository *wireRepository `json:"repository"`
}

type wireCommit struct {
	ID      *string     `json:"id"`
	Message *string     `json:"message"`
	Author  *wireAuthor `json:"author"`
}

type wireAuthor struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type wireRepository struct {
	Name     *string `json:"name"`
	FullName *string `json:"full_name"`
}

// Decode parses a raw webhook body. Unknown fields are ignored; "commits" may be
// absent or null. Errors wrap ErrSyntax or ErrShape.
func Decode(body []byte) (*Event, error) {
	if !json.Valid(body) {
		return nil, ErrSyntax
	}

	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}

	if w.Repository == nil {
		return nil, fmt.Errorf("%w: missing field `repository`", ErrShape)
	}
	if w.Repository.Name == nil {
		return nil, fmt.Errorf("%w: missing field `repository.name`", ErrShape)
	}
	if w.Repository.FullName == nil {
		return nil, fmt.Errorf("%w: missing field `repository.full_name`", ErrShape)
	}

	ev := &Event{
		Ref: w.Ref,
		Repository: Repository{
			Name:     *w.Repository.Name,
			FullName: *w.Repository.FullName,
		},
		Commits: make([]Commit, 0, len(w.Commits)),
	}

	for i, c := range w.Commits {
		switch {
		case c.ID == nil:
			return nil, fmt.Errorf("%w: missing field `commits[%d].id`", ErrShape, i)
		case c.Message == nil:
			return nil, fmt.Errorf("%w: missing field `commits[%d].message`", ErrShape, i)
		case c.Author == nil:
			return nil, fmt.Errorf("%w: missing field `commits[%d].author`", ErrShape, i)
		case c.Author.Name == nil || c.Author.Email == nil:
			return nil, fmt.Errorf("%w: missing field `commits[%d].author.name/email`", ErrShape, i)
		}
		ev.Commits = append(ev.Commits, Commit{
			ID:      *c.ID,
			Message: *c.Message,
			Author:  Author{Name: *c.Author.Name, Email: *c.Author.Email},
		})
	}

	return ev, nil
}
