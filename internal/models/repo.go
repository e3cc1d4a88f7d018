package models

import (
	"fmt"
	"strings"
)

// Repo identifies a repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the repo is unset.
func (r Repo) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// ParseRepo parses "owner/name", an HTTPS URL or an SSH remote.
func ParseRepo(s string) (Repo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Repo{}, fmt.Errorf("empty repository reference")
	}

	// SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(s, "git@") {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return Repo{}, fmt.Errorf("cannot parse SSH remote: %s", s)
		}
		s = parts[1]
	}

	s = strings.TrimSuffix(s, ".git")
	if i := strings.Index(s, "://"); i >= 0 {
		// Drop scheme and host.
		rest := s[i+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return Repo{}, fmt.Errorf("cannot parse owner/repo from: %s", s)
		}
		s = rest[slash+1:]
	}

	segments := strings.Split(strings.Trim(s, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return Repo{}, fmt.Errorf("cannot parse owner/repo from: %s", s)
	}
	return Repo{Owner: segments[0], Name: segments[1]}, nil
}
