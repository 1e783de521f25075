// Package mention finds "@handle" tokens addressed to chat members.
// Matching runs an Aho-Corasick automaton over every handle of the chat at once.
package mention

import (
	"slices"
	"strings"
	"unicode"

	"chat-core/domain"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

const Sigil = '@'

// Broadcast handles mention every member of the chat.
var Broadcast = []string{"all", "everyone"}

type Detector struct {
	matcher   *goahocorasick.Machine
	owners    map[string][]domain.UserID
	everybody []domain.UserID
}

// NewDetector builds the automaton for the given members. Handles are matched
// case-insensitively and two members may share a handle.
func NewDetector(members []domain.ChatMember) (*Detector, error) {
	owners := make(map[string][]domain.UserID)
	for _, m := range members {
		handle := normalize(m.MentionHandle())
		if handle == "" {
			continue
		}
		owners[handle] = append(owners[handle], m.UserID)
	}
	everybody := lo.Map(members, func(m domain.ChatMember, _ int) domain.UserID { return m.UserID })
	for _, b := range Broadcast {
		owners[b] = everybody
	}

	// The double-array trie under the automaton expects sorted, unique keywords
	handles := lo.Keys(owners)
	slices.Sort(handles)
	patterns := make([][]rune, 0, len(handles))
	for _, handle := range handles {
		patterns = append(patterns, append([]rune{Sigil}, []rune(handle)...))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Detector{matcher: m, owners: owners, everybody: everybody}, nil
}

// Mentioned returns the members addressed by content. A handle only counts when
// it is not followed by another handle character, so "@bob" is not found in "@bobby".
func (d *Detector) Mentioned(content string) map[domain.UserID]struct{} {
	found := make(map[domain.UserID]struct{})
	if !strings.ContainsRune(content, Sigil) {
		return found
	}
	text := []rune(strings.ToLower(content))
	for _, term := range d.matcher.MultiPatternSearch(text, false) {
		if continuesHandle(text, term.Pos+len(term.Word)) {
			continue
		}
		if term.Pos > 0 && isHandleRune(text[term.Pos-1]) {
			// e-mail addresses like bob@example are not mentions
			continue
		}
		for _, userID := range d.owners[string(term.Word[1:])] {
			found[userID] = struct{}{}
		}
	}
	return found
}

func normalize(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), string(Sigil)))
}

// continuesHandle reports whether the handle ending at end goes on. A '.' or '-'
// only continues it when a word character follows, so "@bob." ends a sentence
// while "@bob.smith" is another handle.
func continuesHandle(text []rune, end int) bool {
	if end >= len(text) {
		return false
	}
	r := text[end]
	if r == '.' || r == '-' {
		return end+1 < len(text) && isWordRune(text[end+1])
	}
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isHandleRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}
