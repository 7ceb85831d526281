package cli

import (
	"fmt"
	"strings"

	"notetree/internal/tree"
)

type ambiguousIDError struct {
	prefix  string
	matches []string
}

func (e ambiguousIDError) Error() string {
	return fmt.Sprintf("ambiguous id %q matches: %s", e.prefix, strings.Join(e.matches, ", "))
}

func errNotFound(id string) error {
	return tree.NotFoundError{ID: id}
}

func refusalKind(err error) string {
	return tree.RefusalKind(err)
}
