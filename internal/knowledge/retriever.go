// Package knowledge selects bank knowledge-base documents for a customer
// query by keyword lookup. No ranking and no embeddings: the same query
// always yields the same context.
package knowledge

import (
	"fmt"
	"log/slog"
	"strings"
)

// defaultFallbackCount is how many documents are used when no keyword matches
// and no configured default topic is readable.
const defaultFallbackCount = 2

// Retriever maps queries to topic documents stored in a directory.
// Documents are read from disk on every call.
type Retriever struct {
	dir      string
	topics   []Topic
	defaults []string
}

// NewRetriever creates a Retriever over dir. If topics is nil, DefaultTopics
// is used. defaults lists the topic files returned when nothing matches; when
// empty, or when none of them can be read, the first two readable topics in
// table order are used.
func NewRetriever(dir string, topics []Topic, defaults []string) *Retriever {
	if topics == nil {
		topics = DefaultTopics
	}
	return &Retriever{dir: dir, topics: topics, defaults: defaults}
}

// Match returns the topics whose keywords occur in query, in table order.
func (r *Retriever) Match(query string) []Topic {
	q := strings.ToLower(query)
	var matched []Topic
	seen := make(map[string]bool)
	for _, t := range r.topics {
		if seen[t.File] {
			continue
		}
		for _, kw := range t.Keywords {
			if strings.Contains(q, kw) {
				matched = append(matched, t)
				seen[t.File] = true
				break
			}
		}
	}
	return matched
}

// Retrieve returns the concatenated documents relevant to query, each under a
// "=== Name ===" header. With no keyword match it returns the default subset.
// It returns "" only when no document can be read at all.
func (r *Retriever) Retrieve(query string) string {
	docs := r.load(r.Match(query))
	if len(docs) == 0 {
		docs = r.load(r.byFile(r.defaults))
	}
	if len(docs) == 0 {
		docs = r.firstAvailable(defaultFallbackCount)
	}
	if len(docs) == 0 {
		slog.Warn("knowledge base is empty", "dir", r.dir)
		return ""
	}

	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("=== %s ===\n%s", d.topic.Name, d.text)
	}
	return strings.Join(parts, "\n\n")
}

// Available lists topics that have a readable document on disk.
func (r *Retriever) Available() []Topic {
	var out []Topic
	for _, t := range r.topics {
		if _, ok := resolve(r.dir, t.File); ok {
			out = append(out, t)
		}
	}
	return out
}

type document struct {
	topic Topic
	text  string
}

func (r *Retriever) load(topics []Topic) []document {
	var docs []document
	for _, t := range topics {
		path, ok := resolve(r.dir, t.File)
		if !ok {
			continue
		}
		text, err := LoadDocument(path)
		if err != nil {
			slog.Warn("failed to load knowledge document", "path", path, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		docs = append(docs, document{topic: t, text: text})
	}
	return docs
}

func (r *Retriever) byFile(files []string) []Topic {
	var out []Topic
	for _, f := range files {
		for _, t := range r.topics {
			if t.File == f {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (r *Retriever) firstAvailable(n int) []document {
	var docs []document
	for _, t := range r.topics {
		if len(docs) == n {
			break
		}
		docs = append(docs, r.load([]Topic{t})...)
	}
	return docs
}
