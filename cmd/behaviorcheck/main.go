// Command behaviorcheck validates the sigils config and behaviors file
// without starting the daemon. Exits 1 when anything is wrong.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/udisondev/sigils/internal/config"
	"github.com/udisondev/sigils/internal/game/behavior"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if n := check(os.Stdout); n > 0 {
		fmt.Fprintf(os.Stdout, "%d problem(s) found\n", n)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, "ok")
}

// check prints one line per finding and returns how many there were.
func check(out io.Writer) int {
	var findings []error

	cfg, path, err := config.Load()
	if err != nil {
		findings = append(findings, err)
	}
	fmt.Fprintf(out, "config: %s\n", path)

	if _, err := os.Stat(cfg.BehaviorsFile); err != nil {
		findings = append(findings, fmt.Errorf("behaviors file %s: %w", cfg.BehaviorsFile, err))
	} else {
		lib, err := behavior.LoadFile(cfg.BehaviorsFile)
		switch {
		case err != nil:
			findings = append(findings, err)
		default:
			fmt.Fprintf(out, "behaviors: %s (%d)\n", cfg.BehaviorsFile, lib.Len())
			if err := lib.Validate(); err != nil {
				findings = append(findings, err)
			}
		}
	}

	n := 0
	for _, f := range findings {
		for _, leaf := range flatten(f) {
			n++
			fmt.Fprintf(out, "  - %s%s\n", leaf.text, hint(leaf.err))
		}
	}
	return n
}

type finding struct {
	text string
	err  error
}

// flatten expands errors.Join trees into their leaves, keeping the
// context added by wrapping errors on every leaf.
func flatten(err error) []finding {
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		var out []finding
		for _, inner := range e.Unwrap() {
			out = append(out, flatten(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		inner := e.Unwrap()
		if inner == nil {
			break
		}
		leaves := flatten(inner)
		if len(leaves) < 2 {
			break
		}
		if prefix, ok := strings.CutSuffix(err.Error(), inner.Error()); ok {
			for i := range leaves {
				leaves[i].text = prefix + leaves[i].text
			}
			return leaves
		}
	}
	return []finding{{text: err.Error(), err: err}}
}

func hint(err error) string {
	switch {
	case errors.Is(err, behavior.ErrUnknownAction):
		return fmt.Sprintf(" (known actions: %v)", behavior.ActionNames())
	case errors.Is(err, behavior.ErrUnknownTrigger):
		return " (triggers: EFFECT_STATIC, TICK, EXPIRE)"
	default:
		return ""
	}
}
