package ports

import "github.com/layer-3/eden/core"

// Tokenizer issues and validates self-contained session tokens.
type Tokenizer interface {
	Issue(subjectID string) (token string, session core.Session, err error)
	Verify(token string) (core.Session, error)
}
