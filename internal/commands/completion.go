// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/util"
)

// Completion is one candidate for tab completion.
type Completion struct {
	// Value replaces the word being completed.
	Value       string
	Display     string
	Description string
	Score       int
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// ChatsFn returns the chat listing used to complete chat arguments.
	ChatsFn func() []storage.ChatMeta
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for input with the cursor at its end.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(strings.TrimLeft(input, " "), "/") {
		return nil
	}
	trailingSpace := strings.HasSuffix(input, " ")

	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return c.completeCommands("")
	}
	if len(parts) == 1 && !trailingSpace {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(strings.ToLower(parts[0]))
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailingSpace {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// completeCommands returns completions for command names.
func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// completeArg returns completions for a command argument.
func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	case ArgTypeChat:
		return c.completeChats(partial)
	default:
		return nil
	}
}

// completeChats offers listing numbers, described by chat name.
func (c *Completer) completeChats(partial string) []Completion {
	if c.ChatsFn == nil {
		return nil
	}
	var completions []Completion
	for i, meta := range c.ChatsFn() {
		n := strconv.Itoa(i + 1)
		if !strings.HasPrefix(n, partial) && !strings.HasPrefix(meta.ID, partial) {
			continue
		}
		completions = append(completions, Completion{
			Value:       n,
			Display:     n + "  " + util.TruncateWidth(meta.Name, 30),
			Description: meta.ID,
			Score:       100 - i,
		})
	}
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	lower := strings.ToLower(partial)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			completions = append(completions, Completion{
				Value:   v,
				Display: v,
				Score:   calculateScore(v, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

// calculateScore ranks a match. Higher is better.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

// =============================================================================
// COMPLETION STATE
// =============================================================================

// CompletionState cycles through completions on repeated tab presses.
type CompletionState struct {
	// base is the input with the word being completed removed.
	base        string
	completions []Completion
	selected    int
}

// Start computes completions for input and returns the first candidate line,
// or input unchanged when there is nothing to complete.
func (cs *CompletionState) Start(c *Completer, input string) string {
	cs.completions = c.Complete(input)
	cs.selected = 0
	if len(cs.completions) == 0 {
		cs.Clear()
		return input
	}
	cut := strings.LastIndex(input, " ")
	cs.base = input[:cut+1]
	return cs.line()
}

// Next advances to the next candidate and returns the resulting line.
func (cs *CompletionState) Next() string {
	if len(cs.completions) == 0 {
		return cs.base
	}
	cs.selected = (cs.selected + 1) % len(cs.completions)
	return cs.line()
}

// Active reports whether a completion cycle is in progress.
func (cs *CompletionState) Active() bool {
	return len(cs.completions) > 0
}

// Candidates returns the current candidates.
func (cs *CompletionState) Candidates() []Completion {
	return cs.completions
}

// Selected returns the index of the current candidate.
func (cs *CompletionState) Selected() int {
	return cs.selected
}

// Clear ends the cycle.
func (cs *CompletionState) Clear() {
	cs.base = ""
	cs.completions = nil
	cs.selected = 0
}

func (cs *CompletionState) line() string {
	return cs.base + cs.completions[cs.selected].Value
}
