package push

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositorySplit(t *testing.T) {
	tests := []struct {
		fullName  string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{fullName: "acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{fullName: "acme", wantErr: true},
		{fullName: "a/b/c", wantErr: true},
		{fullName: "/widgets", wantErr: true},
		{fullName: "acme/", wantErr: true},
		{fullName: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.fullName, func(t *testing.T) {
			owner, repo, err := Repository{FullName: tt.fullName}.Split()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrRepositoryName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestDecode_FullPayload(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"before": "000",
		"commits": [
			{"id": "abc123", "message": "fix", "author": {"name": "a", "email": "a@x", "username": "ax"}},
			{"id": "def456", "message": "feat", "author": {"name": "b", "email": "b@x"}}
		],
		"repository": {"name": "widgets", "full_name": "acme/widgets", "private": false}
	}`)

	ev, err := Decode(body)
	require.NoError(t, err)

	require.NotNil(t, ev.Ref)
	assert.Equal(t, "refs/heads/main", *ev.Ref)
	assert.Equal(t, Repository{Name: "widgets", FullName: "acme/widgets"}, ev.Repository)
	require.Len(t, ev.Commits, 2)
	assert.Equal(t, Commit{ID: "abc123", Message: "fix", Author: Author{Name: "a", Email: "a@x"}}, ev.Commits[0])
	assert.Equal(t, "def456", ev.Commits[1].ID)
}

func TestDecode_OptionalFields(t *testing.T) {
	ev, err := Decode([]byte(`{"repository": {"name": "w", "full_name": "acme/w"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Ref)
	assert.Empty(t, ev.Commits)

	ev, err = Decode([]byte(`{"commits": null, "repository": {"name": "w", "full_name": "acme/w"}}`))
	require.NoError(t, err)
	assert.Empty(t, ev.Commits)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `{"repository":`, want: ErrSyntax},
		{name: "empty body", body: ``, want: ErrSyntax},
		{name: "missing repository", body: `{"commits": []}`, want: ErrShape},
		{name: "missing full_name", body: `{"repository": {"name": "w"}}`, want: ErrShape},
		{name: "wrong type", body: `{"repository": {"name": 1, "full_name": "a/b"}}`, want: ErrShape},
		{name: "commit without id", body: `{"commits": [{"message": "m", "author": {"name": "a", "email": "e"}}], "repository": {"name": "w", "full_name": "a/w"}}`, want: ErrShape},
		{name: "commit without author", body: `{"commits": [{"id": "1", "message": "m"}], "repository": {"name": "w", "full_name": "a/w"}}`, want: ErrShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
