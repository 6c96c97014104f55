// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"fmt"
	"strings"
)

// CommandKind distinguishes fire-and-forget commands from request-kind
// commands, which carry a reply tag and eventually receive a REPLY.
type CommandKind int

const (
	// KindFireAndForget commands never reply; no reply tag is extracted,
	// so every frame after the command frame reaches the handler as body.
	KindFireAndForget CommandKind = iota
	// KindRequest commands require a non-empty reply-tag frame and may
	// call [Message.SendReply].
	KindRequest
)

// Handler processes one dispatched [Message]. Handlers must not block the
// [ProxyLoop]: they run on a [WorkerPool] slot and may block or sleep
// freely, but must reach the network only via [Message.SendReply] and
// [Message.SendBack].
type Handler func(ctx context.Context, m *Message)

// CommandRecord is a registered command within a [Category].
type CommandRecord struct {
	Name    string
	Kind    CommandKind
	Handler Handler
	// Access overrides the owning category's default Access when
	// non-nil.
	Access *Access
}

// effectiveAccess returns the command's own Access override if set,
// otherwise the category default.
func (r CommandRecord) effectiveAccess(categoryDefault Access) Access {
	if r.Access != nil {
		return *r.Access
	}
	return categoryDefault
}

// Category is a namespace of commands sharing a default [Access] and a
// name prefix. Construct via [CategoryRegistry.AddCategory].
type Category struct {
	Name     string
	Default  Access
	commands map[string]CommandRecord
}

// CategoryBuilder adds commands to a [Category] during the pre-start
// registration phase. Registration errors are returned, never panicked,
// per the spec's design note replacing exception-style validation with
// explicit result types.
type CategoryBuilder struct {
	cat *Category
}

// AddCommand registers a fire-and-forget command. Returns an error if
// name contains '.' or is already registered in this category.
func (b *CategoryBuilder) AddCommand(name string, handler Handler) error {
	return b.add(name, KindFireAndForget, handler, nil)
}

// AddRequestCommand registers a request-kind command, which requires
// callers to supply a reply tag and may call [Message.SendReply]. Returns
// an error if name contains '.' or is already registered in this
// category.
func (b *CategoryBuilder) AddRequestCommand(name string, handler Handler) error {
	return b.add(name, KindRequest, handler, nil)
}

// WithAccess returns a [CategoryBuilder] variant whose AddCommand/
// AddRequestCommand calls register commands whose Access is a, overriding
// the category's default; commands added through b itself keep the
// default.
func (b *CategoryBuilder) WithAccess(a Access) *overrideBuilder {
	return &overrideBuilder{CategoryBuilder: b, access: a}
}

type overrideBuilder struct {
	*CategoryBuilder
	access Access
}

func (b *overrideBuilder) AddCommand(name string, handler Handler) error {
	return b.add(name, KindFireAndForget, handler, &b.access)
}

func (b *overrideBuilder) AddRequestCommand(name string, handler Handler) error {
	return b.add(name, KindRequest, handler, &b.access)
}

func (b *CategoryBuilder) add(name string, kind CommandKind, handler Handler, access *Access) error {
	if strings.Contains(name, ".") {
		return fmt.Errorf("meshmq: command name %q must not contain '.'", name)
	}
	if handler == nil {
		return fmt.Errorf("meshmq: command %q: handler must not be nil", name)
	}
	if _, exists := b.cat.commands[name]; exists {
		return fmt.Errorf("meshmq: duplicate command %q in category %q", name, b.cat.Name)
	}
	b.cat.commands[name] = CommandRecord{Name: name, Kind: kind, Handler: handler, Access: access}
	return nil
}

// CategoryRegistry maps "category.command" strings to their handler and
// effective access policy. Registered before the server starts serving
// ([Server.ListenPlain], [Server.ListenCurve] or [Server.ServeRouter]);
// immutable thereafter (lock-free reads from the [ProxyLoop] goroutine and, once
// started, never mutated again).
type CategoryRegistry struct {
	categories map[string]*Category
	started    bool
}

// NewCategoryRegistry returns an empty registry.
func NewCategoryRegistry() *CategoryRegistry {
	return &CategoryRegistry{categories: make(map[string]*Category)}
}

// AddCategory registers a new category with the given default [Access].
// Returns an error if name contains '.', is empty, or is already
// registered, or if the registry has already started.
func (reg *CategoryRegistry) AddCategory(name string, def Access) (*CategoryBuilder, error) {
	if reg.started {
		return nil, fmt.Errorf("meshmq: cannot add category %q: registry already started", name)
	}
	if name == "" {
		return nil, fmt.Errorf("meshmq: category name must not be empty")
	}
	if strings.Contains(name, ".") {
		return nil, fmt.Errorf("meshmq: category name %q must not contain '.'", name)
	}
	if _, exists := reg.categories[name]; exists {
		return nil, fmt.Errorf("meshmq: duplicate category %q", name)
	}
	cat := &Category{Name: name, Default: def, commands: make(map[string]CommandRecord)}
	reg.categories[name] = cat
	return &CategoryBuilder{cat: cat}, nil
}

// freeze marks the registry immutable; called by [ProxyLoop.Run].
func (reg *CategoryRegistry) freeze() {
	reg.started = true
}

// Lookup splits cmd on its first '.' and resolves the category default
// Access and [CommandRecord]. ok is false when cmd has no '.', names an
// unknown category, or names an unknown command within a known category.
func (reg *CategoryRegistry) Lookup(cmd string) (Access, CommandRecord, bool) {
	catName, cmdName, found := strings.Cut(cmd, ".")
	if !found {
		return Access{}, CommandRecord{}, false
	}
	cat, ok := reg.categories[catName]
	if !ok {
		return Access{}, CommandRecord{}, false
	}
	rec, ok := cat.commands[cmdName]
	if !ok {
		return Access{}, CommandRecord{}, false
	}
	return cat.Default, rec, true
}
