// Package main is the one-shot sandbox worker. The invoker spawns one
// process per tool invocation; the worker reads a single request from
// stdin, executes the named handler, writes a single response to stdout,
// and exits. Handlers are resolved by identifier against the registry
// compiled into this binary; no code crosses the process boundary.
package main

import (
	"os"

	"github.com/haasonsaas/warden/internal/runs"
	"github.com/haasonsaas/warden/internal/sandbox/worker"
	"github.com/haasonsaas/warden/internal/tools"
	"github.com/haasonsaas/warden/pkg/models"
)

func main() {
	resolver := buildResolver()
	if err := worker.Run(os.Stdin, os.Stdout, resolver, worker.Options{}); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

// buildResolver indexes every builtin handler under the identifiers the
// invoker sends: the tool name, or tool.command for sub-operations.
func buildResolver() worker.Resolver {
	handlers := make(map[string]models.Handler)
	for _, def := range tools.Builtins() {
		if def.Handler != nil {
			handlers[runs.HandlerID(def.Name, "")] = def.Handler
		}
		for i := range def.Commands {
			cmd := def.Commands[i]
			if cmd.Handler != nil {
				handlers[runs.HandlerID(def.Name, cmd.Name)] = cmd.Handler
			}
		}
	}
	return worker.ResolverFunc(func(id string) (models.Handler, bool) {
		h, ok := handlers[id]
		return h, ok
	})
}
