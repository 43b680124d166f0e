// Package dispatch routes parsed chat commands to their handlers. The router
// is transport-agnostic: the Telegram adapter and the tests drive it the same
// way.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ChatContext identifies the author of one incoming command.
type ChatContext struct {
	UserID   string
	Username string
	Mod      bool
}

// Action handles one command. args excludes the command token itself. The
// returned string is the chat reply; "" means no reply.
type Action func(ctx context.Context, c ChatContext, args []string) string

// Handler is one registered command.
type Handler struct {
	Action      Action
	Description string
	Format      string
}

// Router maps command keys to handlers. Registration happens once at startup;
// Invoke is called from a single dispatch goroutine.
type Router struct {
	marker   string
	handlers map[string]Handler
	// onCommand runs before every handler, regardless of which one. Used to
	// keep usernames fresh.
	onCommand func(ctx context.Context, c ChatContext)
}

// NewRouter creates a Router with a built-in help command. marker is the
// command prefix used in usage strings ("!").
func NewRouter(marker string, onCommand func(ctx context.Context, c ChatContext)) *Router {
	r := &Router{
		marker:    marker,
		handlers:  make(map[string]Handler),
		onCommand: onCommand,
	}
	r.handlers["help"] = Handler{
		Action:      r.help,
		Description: "List available commands or describe a command",
		Format:      "[<command name>]",
	}
	return r
}

// Marker returns the command prefix.
func (r *Router) Marker() string {
	return r.marker
}

// Register adds a handler. Colliding keys are a wiring bug, caught at
// startup rather than silently shadowed.
func (r *Router) Register(key string, h Handler) error {
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("duplicate command %q", key)
	}
	r.handlers[key] = h
	return nil
}

// Commands returns all registered keys, sorted.
func (r *Router) Commands() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Invoke runs the handler for key, reporting false for an unknown command.
// The reply has the %{format} placeholder expanded into the command's usage
// string.
func (r *Router) Invoke(ctx context.Context, c ChatContext, key string, args []string) (string, bool) {
	h, ok := r.handlers[key]
	if !ok {
		return "", false
	}
	if r.onCommand != nil {
		r.onCommand(ctx, c)
	}
	reply := h.Action(ctx, c, args)
	usage := strings.TrimRight(r.marker+key+" "+h.Format, " ")
	return strings.ReplaceAll(reply, "%{format}", usage), true
}

func (r *Router) help(ctx context.Context, c ChatContext, args []string) string {
	if len(args) > 0 {
		key := args[0]
		h, ok := r.handlers[key]
		if !ok {
			return fmt.Sprintf("%s%s is not a valid command.", r.marker, key)
		}
		return fmt.Sprintf("%s%s: %s. Format: %s%s %s", r.marker, key, h.Description, r.marker, key, h.Format)
	}
	keys := r.Commands()
	for i, k := range keys {
		keys[i] = r.marker + k
	}
	return "Available commands: " + strings.Join(keys, ", ")
}
