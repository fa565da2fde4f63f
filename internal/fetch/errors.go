package fetch

import (
	"fmt"
	"strings"

	"agent-resources/internal/resource"
)

// RepoNotFoundError indicates the resource repository itself is missing on
// GitHub (HTTP 404 on the archive download).
type RepoNotFoundError struct {
	Owner string
	Repo  string
}

func (e *RepoNotFoundError) Error() string {
	return fmt.Sprintf("repository %s/%s not found on GitHub. Check the username, or pass --repo to fetch from a different repository", e.Owner, e.Repo)
}

// NotFoundError indicates the repository exists but contains the resource in
// none of the known layout locations.
type NotFoundError struct {
	Category resource.Category
	Ref      resource.Ref
	Repo     string
	Tried    []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q not found in %s/%s\n", e.Category, e.Ref.Name, e.Ref.Owner, e.Repo)
	b.WriteString("\nTried these locations:\n")
	for _, loc := range e.Tried {
		fmt.Fprintf(&b, "  - %s\n", loc)
	}
	b.WriteString("\nQuick fixes:\n")
	b.WriteString("  - Check the resource name for typos\n")
	b.WriteString("  - Pass --repo <repository> if the resource lives in a different repository\n")
	b.WriteString("  - Pass --dest <path> to install into a custom destination")
	return b.String()
}
