package tsmodel

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// ContentHash computes the SHA256 hex digest of file content, the key
// component that makes cache entries immune to revision aliasing.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// Cache memoizes parsed file models by (revision, path, content-hash) and
// node fingerprints by (revision, path, span, kind). Safe for parallel
// reads; writes are serialized.
type Cache struct {
	mu           sync.RWMutex
	parser       *Parser
	models       map[string]*FileModel
	fingerprints map[string]string
}

// NewCache creates a cache with its own parser.
func NewCache() *Cache {
	return &Cache{
		parser:       NewParser(),
		models:       map[string]*FileModel{},
		fingerprints: map[string]string{},
	}
}

func modelKey(revision, path, contentHash string) string {
	return revision + "\x00" + path + "\x00" + contentHash
}

// Model returns the parsed model for a file revision, building and
// memoizing it on first use. Unparseable content yields an empty model
// and ok=false.
func (c *Cache) Model(ctx context.Context, revision, path string, content []byte) (*FileModel, bool) {
	key := modelKey(revision, path, ContentHash(content))

	c.mu.RLock()
	model, hit := c.models[key]
	c.mu.RUnlock()
	if hit {
		return model, model.Root != nil
	}

	model, err := c.parser.BuildFileModel(ctx, path, content)
	ok := err == nil
	if !ok {
		model = EmptyFileModel(path)
	}

	c.mu.Lock()
	c.models[key] = model
	c.mu.Unlock()

	return model, ok
}

// NodeFingerprint memoizes Fingerprint by the node's byte span and kind.
func (c *Cache) NodeFingerprint(revision, path string, node *sitter.Node, source []byte, kind string) string {
	if node == nil {
		return ""
	}
	key := fmt.Sprintf("%s\x00%s\x00%d-%d\x00%s", revision, path, node.StartByte(), node.EndByte(), kind)

	c.mu.RLock()
	fp, hit := c.fingerprints[key]
	c.mu.RUnlock()
	if hit {
		return fp
	}

	fp = Fingerprint(node, source)

	c.mu.Lock()
	c.fingerprints[key] = fp
	c.mu.Unlock()

	return fp
}

// MemberFingerprint combines memoized overload and implementation
// fingerprints for a member at a revision.
func (c *Cache) MemberFingerprint(revision, path string, m *Member, source []byte) string {
	if m == nil {
		return ""
	}

	combined := ""
	for _, overload := range m.OverloadNodes {
		if combined != "" {
			combined += "|"
		}
		combined += c.NodeFingerprint(revision, path, overload, source, "signature")
	}
	if m.ImplementationNode != nil {
		if combined != "" {
			combined += "|"
		}
		combined += c.NodeFingerprint(revision, path, m.ImplementationNode, source, "body")
	}
	return combined
}
