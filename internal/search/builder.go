// Package search builds backend query strings for live search.
//
// Queries are SQLite SQL over the index schema. Every user-supplied value
// is embedded as an escaped literal, so a query string is self-contained
// and can be handed to any backend.Backend that speaks SQL.
package search

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wesm/livefind/internal/backend"
)

const selectColumns = "SELECT i.id, i.item_url, i.display_name, i.kind, i.kind_text FROM items i"

// Result order: relevance, then recency, then display name descending. id
// breaks remaining ties so the order is total.
const orderBy = "ORDER BY i.rank DESC, i.date_modified DESC, i.display_name DESC, i.id DESC"

// nameBoundaries are the characters after which a word may start inside a
// display name, for the LIKE dialect.
var nameBoundaries = []string{" ", ".", "-", "_", "("}

// Builder produces query strings. It is safe for concurrent use.
type Builder struct {
	fts      bool
	profiles *ProfileScope
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithFTS selects the FTS5 dialect. Pass the store's FTSAvailable result.
func WithFTS(enabled bool) BuilderOption {
	return func(b *Builder) { b.fts = enabled }
}

// WithProfileScope sets the source of other-user profile exclusions used
// when all-users search is off. Without it nothing is excluded.
func WithProfileScope(p *ProfileScope) BuilderOption {
	return func(b *Builder) { b.profiles = p }
}

// NewBuilder creates a Builder (LIKE dialect unless WithFTS(true)).
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildQuery returns the query for one live-search request.
//
// Non-empty text matches items whose display name contains a word starting
// with text; with contentSearch it also matches items whose content contains
// every whitespace-separated token. A non-zero token restricts evaluation
// to the match set the token names, and applies with empty text too.
func (b *Builder) BuildQuery(text string, contentSearch, mailSearch, allUsersSearch bool, token backend.ReuseToken) string {
	conds := b.scopeConditions(mailSearch, allUsersSearch)

	text = normalizeText(text)
	if text != "" {
		pred := b.namePredicate(text)
		if contentSearch {
			pred = "(" + pred + " OR " + b.contentPredicate(strings.Fields(text)) + ")"
		}
		conds = append(conds, pred)
	}

	if token != backend.NoReuseToken {
		conds = append(conds, reuseClause(token))
	}

	return selectColumns + " WHERE " + strings.Join(conds, " AND ") + " " + orderBy
}

// CanNarrow reports whether every item matching next also matches
// previous under the same options, so a scope materialised for previous
// may restrict next.
//
// SQLite LIKE folds ASCII case only, so the prefix test does too. In the
// FTS dialect content tokens match whole words, so a content query narrows
// only when it keeps every earlier token intact.
func (b *Builder) CanNarrow(previous, next string, contentSearch bool) bool {
	previous, next = normalizeText(previous), normalizeText(next)
	if previous == "" {
		return true
	}
	if !hasASCIIFoldPrefix(next, previous) {
		return false
	}
	if !b.fts {
		return true
	}
	if hasSearchableRune(previous) != hasSearchableRune(next) {
		return false
	}
	if !contentSearch {
		return true
	}

	prevTokens, nextTokens := strings.Fields(previous), strings.Fields(next)
	if b.contentFTS(prevTokens) != b.contentFTS(nextTokens) {
		return false
	}
	if !b.contentFTS(nextTokens) {
		return true
	}
	for _, p := range prevTokens {
		found := false
		for _, n := range nextTokens {
			if strings.EqualFold(p, n) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BuildPrimingQuery returns the broad query run once at startup (and after
// option changes) to obtain an initial reuse token.
func (b *Builder) BuildPrimingQuery(mailSearch, allUsersSearch bool) string {
	conds := b.scopeConditions(mailSearch, allUsersSearch)
	return selectColumns + " WHERE " + strings.Join(conds, " AND ") + " " + orderBy
}

func (b *Builder) scopeConditions(mailSearch, allUsersSearch bool) []string {
	var conds []string
	if mailSearch {
		conds = append(conds, "i.scope IN ('file', 'mail')")
	} else {
		conds = append(conds, "i.scope = 'file'")
	}
	if !allUsersSearch && b.profiles != nil {
		for _, dir := range b.profiles.Excluded() {
			prefix := "file:" + dir
			conds = append(conds, fmt.Sprintf(
				"i.item_url != %s AND i.item_url NOT LIKE %s ESCAPE '\\'",
				sqlLiteral(prefix), sqlLiteral(likeEscape(prefix)+"/%")))
		}
	}
	return conds
}

func (b *Builder) namePredicate(text string) string {
	if b.fts && hasSearchableRune(text) {
		return ftsClause("display_name : " + ftsPhrase(text) + "*")
	}
	pat := likeEscape(text)
	parts := []string{likeClause("i.display_name", pat+"%")}
	for _, sep := range nameBoundaries {
		parts = append(parts, likeClause("i.display_name", "%"+likeEscape(sep)+pat+"%"))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// contentFTS reports whether the content predicate for tokens uses FTS5.
func (b *Builder) contentFTS(tokens []string) bool {
	if !b.fts {
		return false
	}
	for _, tok := range tokens {
		if !hasSearchableRune(tok) {
			return false
		}
	}
	return true
}

func (b *Builder) contentPredicate(tokens []string) string {
	if b.contentFTS(tokens) {
		terms := make([]string, len(tokens))
		for i, tok := range tokens {
			terms[i] = "content : " + ftsPhrase(tok)
		}
		return ftsClause(strings.Join(terms, " AND "))
	}
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = likeClause("i.content", "%"+likeEscape(tok)+"%")
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// reuseClause restricts a query to a materialised scope. A scope that no
// longer exists (evicted by the backend) or was built before the index last
// changed leaves the query unrestricted rather than missing items.
func reuseClause(token backend.ReuseToken) string {
	return fmt.Sprintf(
		"(i.id IN (SELECT item_id FROM scope_rows WHERE where_id = %d) OR NOT EXISTS "+
			"(SELECT 1 FROM scopes s JOIN index_state g ON s.generation = g.generation WHERE s.where_id = %d))",
		uint64(token), uint64(token))
}

// normalizeText is the form of search text a query is built from.
func normalizeText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
}

// hasASCIIFoldPrefix is strings.HasPrefix with ASCII letters compared
// case-insensitively, matching SQLite's LIKE.
func hasASCIIFoldPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if asciiLower(s[i]) != asciiLower(prefix[i]) {
			return false
		}
	}
	return true
}

func asciiLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func ftsClause(match string) string {
	return "i.id IN (SELECT rowid FROM items_fts WHERE items_fts MATCH " + sqlLiteral(match) + ")"
}

func likeClause(column, pattern string) string {
	return column + " LIKE " + sqlLiteral(pattern) + " ESCAPE '\\'"
}

// sqlLiteral quotes s as an SQL string literal.
func sqlLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// likeEscape escapes LIKE wildcards with backslash.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ftsPhrase quotes s as an FTS5 phrase.
func ftsPhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// hasSearchableRune reports whether the FTS tokenizer would produce at
// least one token from s.
func hasSearchableRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
