package github

import (
	"context"
	"testing"
)

func TestClient_SetCurrentOrg(t *testing.T) {
	c := &Client{}

	c.SetCurrentOrg("test-org")

	if c.currentOrg != "test-org" {
		t.Errorf("expected currentOrg to be 'test-org', got %q", c.currentOrg)
	}
}

func TestClient_Token_PersonalToken(t *testing.T) {
	ctx := context.Background()
	c := &Client{
		isAppAuth: false,
		token:     "test-token",
	}

	token, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "test-token" {
		t.Errorf("expected 'test-token', got %q", token)
	}
}

func TestClient_Token_AppAuthNoOrg(t *testing.T) {
	ctx := context.Background()
	c := &Client{
		isAppAuth:  true,
		token:      "jwt-token",
		currentOrg: "",
	}

	token, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "jwt-token" {
		t.Errorf("expected 'jwt-token', got %q", token)
	}
}

func TestSplitRepositoryURL(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"https://api.github.com/repos/acme/shop", "acme", "shop", true},
		{"https://api.github.com/repos/acme/", "", "", false},
		{"https://api.github.com/repos/acme", "", "", false},
		{"https://example.com/repos/acme/shop", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, ok := splitRepositoryURL(tt.url)
			if owner != tt.wantOwner || repo != tt.wantRepo || ok != tt.wantOK {
				t.Errorf("splitRepositoryURL(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.url, owner, repo, ok, tt.wantOwner, tt.wantRepo, tt.wantOK)
			}
		})
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://api.github.com/repos/a/b?access_token=secret", "https://api.github.com/repos/a/b"},
		{"https://api.github.com/repos/a/b", "https://api.github.com/repos/a/b"},
		{"://bad url", "(unparseable URL)"},
	}

	for _, tt := range tests {
		if got := sanitizeURLForLogging(tt.input); got != tt.want {
			t.Errorf("sanitizeURLForLogging(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
