package repo

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/denormal/go-gitignore"
)

// Patterns that are always excluded from worktree walks, regardless
// of the user's ignore file.
var builtinIgnorePatterns = []string{
	MetaDirName + "/**",
	".git/**",
	IgnoreFileName,
}

// ignoreMatcher compiles the builtin patterns plus the repository's
// .castorignore into one matcher. The gitignore library misbehaves
// under concurrent use, so all matching is serialized; worktree walks
// are I/O bound and do not notice.
type ignoreMatcher struct {
	mu      sync.Mutex
	root    string
	matcher gitignore.GitIgnore
}

func newIgnoreMatcher(root string) *ignoreMatcher {
	return &ignoreMatcher{root: root, matcher: compileIgnore(root)}
}

func compileIgnore(root string) gitignore.GitIgnore {
	patterns := make([]string, len(builtinIgnorePatterns))
	copy(patterns, builtinIgnorePatterns)

	if content, err := os.ReadFile(filepath.Join(root, IgnoreFileName)); err == nil {
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// Directory patterns become globs so the library treats
			// them recursively.
			if strings.HasSuffix(line, "/") {
				line += "**"
			}
			patterns = append(patterns, line)
		}
	}

	matcher := gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		root,
		func(err gitignore.Error) bool { return false },
	)
	if matcher == nil {
		matcher = gitignore.New(strings.NewReader(""), root, nil)
	}
	return matcher
}

func (m *ignoreMatcher) ignored(absPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, err := filepath.Rel(m.root, absPath)
	if err != nil {
		return false
	}
	match := m.matcher.Match(filepath.ToSlash(rel))
	if match == nil {
		match = m.matcher.Match(absPath)
	}
	if match == nil {
		return false
	}
	return match.Ignore()
}
