package tui

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"researchchat/internal/domain"
)

func renderTranscript(messages []domain.Message, width int) string {
	if len(messages) == 0 {
		return "Ask anything, or press ctrl+o to chat with your documents."
	}
	wrap := lipgloss.NewStyle().Width(max(20, width-2))
	var b strings.Builder
	lastQuestion := ""
	for _, msg := range messages {
		if msg.Role == domain.RoleUser {
			lastQuestion = msg.Content
			label := "You"
			if msg.Local() {
				label += dimStyle.Render(" (sending)")
			}
			b.WriteString(userStyle.Render(label) + "\n")
			b.WriteString(wrap.Render(msg.Content) + "\n\n")
			continue
		}
		label := "Assistant"
		if msg.Confidence != nil {
			label += dimStyle.Render(fmt.Sprintf(" (confidence %.0f%%)", *msg.Confidence*100))
		}
		b.WriteString(botStyle.Render(label) + "\n")
		b.WriteString(wrap.Render(highlightBestSentence(msg.Content, lastQuestion)) + "\n")
		for i, c := range msg.Citations {
			b.WriteString(dimStyle.Render(citationLine(i+1, c)) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func citationLine(n int, c domain.Citation) string {
	line := fmt.Sprintf("  [%d] %s", n, c.Title)
	if c.URL != "" {
		line += " " + c.URL
	}
	if c.RelevanceScore != nil {
		line += fmt.Sprintf(" (%.2f)", *c.RelevanceScore)
	}
	return line
}

var (
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	// A sentence runs up to its terminator or to the end of the text.
	sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]|\z)`)
)

// highlightBestSentence marks the sentence of an answer sharing the most
// words with the question.
func highlightBestSentence(text, query string) string {
	return markBestSentence(text, query, highlightStyle.Render)
}

// markBestSentence wraps the best matching sentence with mark in place; every
// other byte of text is kept as it is.
func markBestSentence(text, query string, mark func(...string) string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	best, bestScore := -1, 0
	spans := sentenceRe.FindAllStringIndex(text, -1)
	for i, sp := range spans {
		if score := tokenOverlapScore(qTokens, text[sp[0]:sp[1]]); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return text
	}
	start, end := spans[best][0], spans[best][1]
	sentence := text[start:end]
	start += len(sentence) - len(strings.TrimLeftFunc(sentence, unicode.IsSpace))
	end -= len(sentence) - len(strings.TrimRightFunc(sentence, unicode.IsSpace))
	return text[:start] + mark(text[start:end]) + text[end:]
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
